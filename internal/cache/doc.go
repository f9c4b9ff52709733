// Package cache содержит хранилище закэшированных артефактов сайтов
// и сервис, принимающий одно решение о свежести кэша на весь run.
//
// Артефакты (markdown страниц, списки изображений) хранятся по ключу
// (домен, тип содержимого) вместе со временем кэширования.
//
// Реализации Store:
//   - MemoryStore — для тестов и локального запуска
//   - RedisStore  — для production
package cache
