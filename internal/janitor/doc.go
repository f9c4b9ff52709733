// Package janitor периодически удаляет устаревшие артефакты кэша.
//
// Расписание задаётся cron-выражением (5 полей). Артефакты старше
// Retention удаляются через cache.Store.Purge. Решения о кэше уже
// созданных run'ов не зависят от janitor'а: они приняты при Submit.
//
// Использование:
//
//	j, err := janitor.New(janitor.Config{
//	    Store:     cacheStore,
//	    Schedule:  "0 3 * * *",
//	    Retention: 30 * 24 * time.Hour,
//	    Logger:    logger,
//	})
//	go j.Run(ctx)
package janitor
