package steps

import "time"

// Имена шагов эталонной топологии.
const (
	StepPropertyInfo   = "property_info"
	StepImages         = "images"
	StepBrandIdentity  = "brand_identity"
	StepAmenities      = "amenities"
	StepFloorPlans     = "floor_plans"
	StepSpecialOffers  = "special_offers"
	StepClassifyImages = "classify_images"
	StepReviews        = "reviews"
	StepCompetitors    = "competitors"
)

// Классы ограничения частоты.
const (
	// ClassCrawler — обход сайта объекта.
	ClassCrawler = "crawler"

	// ClassScraper — внешний сервис скрапинга с общим токеном
	// (изображения, отзывы, конкуренты).
	ClassScraper = "scraper"

	// ClassLLM — вызовы языковой модели.
	ClassLLM = "llm"
)

// ReferenceNames — шаги эталонной топологии в порядке объявления.
var ReferenceNames = []string{
	StepPropertyInfo,
	StepImages,
	StepBrandIdentity,
	StepAmenities,
	StepFloorPlans,
	StepSpecialOffers,
	StepClassifyImages,
	StepReviews,
	StepCompetitors,
}

// Reference возвращает эталонную таблицу шагов с исполнителями из executors.
// Отсутствующий исполнитель обнаружит NewRegistry.
func Reference(executors map[string]Executor) []Definition {
	after := []string{StepPropertyInfo}
	backoff := &RetryPolicy{MaxAttempts: 2, Backoff: BackoffExponential, InitialDelay: 2 * time.Second}

	return []Definition{
		{Name: StepPropertyInfo, Mandatory: true, RateLimitClass: ClassCrawler, Timeout: 3 * time.Minute, Executor: executors[StepPropertyInfo]},
		{Name: StepImages, DependsOn: after, ConsumesCache: true, RateLimitClass: ClassScraper, Retry: backoff, Executor: executors[StepImages]},
		{Name: StepBrandIdentity, DependsOn: after, ConsumesCache: true, RateLimitClass: ClassLLM, Executor: executors[StepBrandIdentity]},
		{Name: StepAmenities, DependsOn: after, ConsumesCache: true, RateLimitClass: ClassLLM, Executor: executors[StepAmenities]},
		{Name: StepFloorPlans, DependsOn: after, ConsumesCache: true, RateLimitClass: ClassLLM, Executor: executors[StepFloorPlans]},
		{Name: StepSpecialOffers, DependsOn: after, ConsumesCache: true, RateLimitClass: ClassLLM, Executor: executors[StepSpecialOffers]},
		{Name: StepClassifyImages, DependsOn: []string{StepImages}, RateLimitClass: ClassLLM, Executor: executors[StepClassifyImages]},
		{Name: StepReviews, DependsOn: after, RateLimitClass: ClassScraper, Retry: backoff, Executor: executors[StepReviews]},
		{Name: StepCompetitors, DependsOn: after, RateLimitClass: ClassScraper, Retry: backoff, Executor: executors[StepCompetitors]},
	}
}

// NewReferenceRegistry собирает и проверяет эталонный реестр.
func NewReferenceRegistry(executors map[string]Executor) (*Registry, error) {
	return NewRegistry(Reference(executors)...)
}
