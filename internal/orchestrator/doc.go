// Package orchestrator ведёт run'ы онбординга.
//
// Orchestrator отвечает за:
//   - Создание run'а с единым решением о кэше (Submit, Run)
//   - Вычисление готовых шагов по графу зависимостей
//   - Запуск шагов в ограниченном пуле воркеров с семафором на класс
//     ограничения частоты
//   - Фиксацию результатов и пропуск шагов, зависящих от упавших
//   - Синхронное сохранение каждого перехода в хранилище
//   - Retry отдельного шага, отмену и возобновление после рестарта
//   - Запросы статуса и недостающих извлечений
//
// На каждый run запускается одна горутина-координатор. Только она
// меняет состояние шагов; воркеры присылают ей события через канал.
package orchestrator
