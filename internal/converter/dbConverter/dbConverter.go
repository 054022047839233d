package dbConverter

import (
	"encoding/json"
	"fmt"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model/dbModel"
)

func ConvertUserLists(rows []dbModel.UserList) (model.PortfolioLists, error) {
	lists := model.PortfolioLists{}

	for _, row := range rows {
		var err error
		switch model.ListKind(row.ListKind) {
		case model.ListTargets:
			err = json.Unmarshal(row.Data, &lists.Targets)
		case model.ListRebalanceTargets:
			err = json.Unmarshal(row.Data, &lists.RebalanceTargets)
		case model.ListHoldings:
			err = json.Unmarshal(row.Data, &lists.Holdings)
		default:
			// неизвестные виды списков пропускаем, чтобы старые записи не ломали загрузку
			continue
		}
		if err != nil {
			return model.PortfolioLists{}, fmt.Errorf("unmarshal %s list: %w", row.ListKind, err)
		}
	}

	return lists, nil
}

func ListData(kind model.ListKind, lists model.PortfolioLists) ([]byte, error) {
	switch kind {
	case model.ListTargets:
		return json.Marshal(nonNil(lists.Targets))
	case model.ListRebalanceTargets:
		return json.Marshal(nonNil(lists.RebalanceTargets))
	case model.ListHoldings:
		return json.Marshal(nonNil(lists.Holdings))
	default:
		return nil, fmt.Errorf("unknown list kind %q", kind)
	}
}

// nonNil - чтобы пустой список сохранялся как [], а не null
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
