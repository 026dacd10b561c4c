// listing.go — перечисление зарегистрированных объектов.
package service

import (
	"github.com/bigkaa/media-broker/internal/domain/model"
	"github.com/bigkaa/media-broker/internal/storage/registry"
)

// ListParams — параметры постраничного листинга.
type ListParams struct {
	// Limit — максимум записей в ответе, 0 — без ограничения
	Limit int
	// Offset — сколько записей пропустить
	Offset int
}

// ListResult — страница снимка реестра.
type ListResult struct {
	Records []*model.MediaRecord
	// Total — размер снимка до применения limit/offset
	Total int
}

// ListingService — листинг реестра.
// Фильтрации по владельцу нет: любой аутентифицированный пользователь видит все записи.
type ListingService struct {
	reg registry.Registry
}

// NewListingService создаёт сервис листинга.
func NewListingService(reg registry.Registry) *ListingService {
	return &ListingService{reg: reg}
}

// ListFor возвращает записи в порядке добавления.
// subject принимается для будущей фильтрации по владельцу и сейчас не используется.
func (s *ListingService) ListFor(_ string, params ListParams) ListResult {
	snapshot := s.reg.List()
	total := len(snapshot)

	offset := min(max(params.Offset, 0), total)
	end := total
	if params.Limit > 0 {
		end = min(offset+params.Limit, total)
	}

	return ListResult{
		Records: snapshot[offset:end],
		Total:   total,
	}
}
