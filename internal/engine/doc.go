// Package engine строит граф зависимостей шагов онбординга.
//
// Включает:
//   - dag.go    — построение, проверка и обход DAG (directed acyclic graph)
//   - errors.go — ошибки конфигурации графа
//
// Граф строится один раз при старте процесса. Ошибка построения —
// это ошибка конфигурации, а не ошибка выполнения.
package engine
