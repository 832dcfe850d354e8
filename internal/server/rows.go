package server

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"taskdeck/internal/domain"
	"taskdeck/internal/remote"
	"taskdeck/internal/repo"
)

// collection wires one remote table to CRUD routes and a change feed. R is the
// request body decoded into T.
type collection[T any, R any] struct {
	name     string
	singular string
	table    remote.Table[T]
	build    func(req R, id, owner string) (T, error)
}

type listInput struct {
	OrderBy         string   `query:"order_by" doc:"Column to sort by (default created_at)"`
	Desc            bool     `query:"desc"`
	IncludeArchived bool     `query:"include_archived"`
	Filter          []string `query:"filter" doc:"Equality filters as column:value"`
}

func (in listInput) query() (remote.Query, error) {
	q := remote.Query{OrderBy: in.OrderBy, Descending: in.Desc, IncludeArchived: in.IncludeArchived}
	for _, f := range in.Filter {
		if f == "" {
			continue
		}
		col, val, ok := strings.Cut(f, ":")
		if !ok || col == "" {
			return q, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid filter %q", f),
				map[string]any{"field": "filter", "reason": "expected column:value"})
		}
		if q.Filters == nil {
			q.Filters = map[string]string{}
		}
		q.Filters[col] = val
	}
	return q, nil
}

func registerCollection[T any, R any](api huma.API, router chi.Router, cfg Config, c collection[T, R]) {
	base := "/" + c.name
	errs := []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusServiceUnavailable, http.StatusInternalServerError}

	huma.Register(api, huma.Operation{
		OperationID: "list-" + c.name,
		Method:      http.MethodGet,
		Path:        base,
		Summary:     "List " + strings.ReplaceAll(c.name, "_", " "),
		Errors:      errs,
	}, func(ctx context.Context, input *listInput) (*struct {
		Body struct {
			Items []T `json:"items"`
		} `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := input.query()
		if err != nil {
			return nil, err
		}
		rows, err := c.table.List(ctx, owner, q)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []T `json:"items"`
			} `json:"body"`
		}{}
		resp.Body.Items = rows
		if resp.Body.Items == nil {
			resp.Body.Items = []T{}
		}
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-" + c.singular,
		Method:      http.MethodGet,
		Path:        base + "/{id}",
		Summary:     "Get " + strings.ReplaceAll(c.singular, "-", " "),
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body T `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		row, err := c.table.Get(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body T `json:"body"`
		}{Body: row}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-" + c.singular,
		Method:        http.MethodPost,
		Path:          base,
		Summary:       "Create " + strings.ReplaceAll(c.singular, "-", " "),
		DefaultStatus: http.StatusCreated,
		Errors:        append(errs, http.StatusConflict),
	}, func(ctx context.Context, input *struct {
		Body R `json:"body"`
	}) (*struct {
		Body T `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		row, err := c.build(input.Body, "", owner)
		if err != nil {
			return nil, handleError(err)
		}
		created, err := c.table.Insert(ctx, row)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body T `json:"body"`
		}{Body: created}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-" + c.singular,
		Method:      http.MethodPut,
		Path:        base + "/{id}",
		Summary:     "Replace " + strings.ReplaceAll(c.singular, "-", " "),
		Errors:      append(errs, http.StatusConflict),
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body R      `json:"body"`
	}) (*struct {
		Body T `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		row, err := c.build(input.Body, input.ID, owner)
		if err != nil {
			return nil, handleError(err)
		}
		updated, err := c.table.Update(ctx, row)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body T `json:"body"`
		}{Body: updated}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-" + c.singular,
		Method:        http.MethodDelete,
		Path:          base + "/{id}",
		Summary:       "Delete " + strings.ReplaceAll(c.singular, "-", " "),
		DefaultStatus: http.StatusNoContent,
		Errors:        errs,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := c.table.Delete(ctx, owner, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	router.Get(path.Join(cfg.BasePath, c.name, "changes"), changeFeed(c.name, c.table, cfg.logger()))
}

func registerTabOrders(api huma.API, r repo.Repo) {
	errs := []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusServiceUnavailable, http.StatusInternalServerError}

	huma.Register(api, huma.Operation{
		OperationID: "get-tab-order",
		Method:      http.MethodGet,
		Path:        "/" + remote.TabOrders,
		Summary:     "Get saved tab order",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Scope string `query:"scope"`
	}) (*struct {
		Body domain.TabOrder `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := r.GetOrder(ctx, owner, input.Scope)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TabOrder `json:"body"`
		}{Body: o}, nil
	})

	write := func(insert bool) func(ctx context.Context, input *struct {
		Body TabOrderRequest `json:"body"`
	}) (*struct {
		Body domain.TabOrder `json:"body"`
	}, error) {
		return func(ctx context.Context, input *struct {
			Body TabOrderRequest `json:"body"`
		}) (*struct {
			Body domain.TabOrder `json:"body"`
		}, error) {
			owner, authErr := ownerFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			o := domain.TabOrder{OwnerID: owner, Scope: input.Body.Scope, IDs: input.Body.IDs}
			var err error
			if insert {
				err = r.InsertOrder(ctx, o)
			} else {
				err = r.UpdateOrder(ctx, o)
			}
			if err != nil {
				return nil, handleError(err)
			}
			saved, err := r.GetOrder(ctx, owner, o.Scope)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.TabOrder `json:"body"`
			}{Body: saved}, nil
		}
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-tab-order",
		Method:        http.MethodPost,
		Path:          "/" + remote.TabOrders,
		Summary:       "Save a new tab order",
		DefaultStatus: http.StatusCreated,
		Errors:        append(errs, http.StatusConflict),
	}, write(true))

	huma.Register(api, huma.Operation{
		OperationID: "update-tab-order",
		Method:      http.MethodPut,
		Path:        "/" + remote.TabOrders,
		Summary:     "Replace a saved tab order",
		Errors:      errs,
	}, write(false))
}
