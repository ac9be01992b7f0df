package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/sellery/api/internal/domain"
	pfirestore "github.com/sellery/api/internal/platform/firestore"
	"github.com/sellery/api/internal/platform/pagination"
	"github.com/sellery/api/internal/repositories"
)

const (
	orderCollection       = "orders"
	orderNumberCollection = "orderNumbers"
)

// OrderRepository persists order headers. The human-facing order number is
// reserved through a companion document so uniqueness is enforced atomically
// with the header insert.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order header and reserves its number in one transaction.
// A taken number surfaces as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	number := strings.TrimSpace(order.Number)
	if number == "" {
		return errors.New("order repository: order number is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	orderRef := client.Collection(orderCollection).Doc(orderID)
	numberRef := client.Collection(orderNumberCollection).Doc(number)
	doc := encodeOrder(order)

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(numberRef, orderNumberDocument{OrderID: orderID, ReservedAt: doc.CreatedAt}); err != nil {
			return err
		}
		return tx.Create(orderRef, doc)
	})
}

// Delete removes the header and releases its number reservation. This is the
// compensating rollback of the aggregate writer; it must not leave a dangling
// number reservation behind.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	orderRef := client.Collection(orderCollection).Doc(id)

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("order repository: decode %s: %w", id, err)
		}
		if number := strings.TrimSpace(doc.Number); number != "" {
			if err := tx.Delete(client.Collection(orderNumberCollection).Doc(number)); err != nil {
				return err
			}
		}
		return tx.Delete(orderRef)
	})
}

// FindByID loads a single order header.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// FindByNumber resolves the number reservation and loads the header.
func (r *OrderRepository) FindByNumber(ctx context.Context, number string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return domain.Order{}, errors.New("order repository: order number is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := client.Collection(orderNumberCollection).Doc(trimmed).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orderNumbers.get", err)
	}
	var reservation orderNumberDocument
	if err := snap.DataTo(&reservation); err != nil {
		return domain.Order{}, fmt.Errorf("order repository: decode number %s: %w", trimmed, err)
	}
	return r.FindByID(ctx, reservation.OrderID)
}

// List returns orders matching the filter, newest first (ULID IDs sort by time).
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		if flag := strings.TrimSpace(filter.Flag); flag != "" {
			q = q.Where("flags."+flag, "==", true)
		}
		if filter.CreatedRange.From != nil {
			q = q.Where("createdAt", ">=", filter.CreatedRange.From.UTC())
		}
		if filter.CreatedRange.To != nil {
			q = q.Where("createdAt", "<=", filter.CreatedRange.To.UTC())
		}
		q = q.OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(cursor.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for i, doc := range docs {
		if i == pageSize {
			token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{docs[i-1].ID}})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, decodeOrder(doc.ID, doc.Data))
	}
	return page, nil
}

// UpdateStatus re-reads the header inside a transaction, applies the mutation,
// and writes the status-machine fields back. An error from mutate aborts the
// transaction without writing.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, mutate repositories.OrderStatusMutation) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if mutate == nil {
		return domain.Order{}, errors.New("order repository: mutation is required")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	ref := client.Collection(orderCollection).Doc(id)

	var updated domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("order repository: decode %s: %w", id, err)
		}

		next, err := mutate(decodeOrder(id, doc))
		if err != nil {
			return err
		}

		updates := []firestore.Update{
			{Path: "status", Value: string(next.Status)},
			{Path: "updatedAt", Value: next.UpdatedAt.UTC()},
		}
		if method := strings.TrimSpace(next.PaymentMethod); method != "" {
			updates = append(updates, firestore.Update{Path: "paymentMethod", Value: method})
		}
		if txn := strings.TrimSpace(next.PaymentTransactionID); txn != "" {
			updates = append(updates, firestore.Update{Path: "paymentTransactionId", Value: txn})
		}
		if next.PaymentCompletedAt != nil {
			updates = append(updates, firestore.Update{Path: "paymentCompletedAt", Value: next.PaymentCompletedAt.UTC()})
		}
		if next.Metadata != nil {
			updates = append(updates, firestore.Update{Path: "metadata", Value: next.Metadata})
		}

		updated = next
		return tx.Update(ref, updates)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// SetFlag records an operational marker for reconciliation queries.
func (r *OrderRepository) SetFlag(ctx context.Context, orderID string, key string, value any) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	flag := strings.TrimSpace(key)
	if id == "" || flag == "" {
		return errors.New("order repository: order id and flag key are required")
	}
	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "flags." + flag, Value: value},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return err
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		Number:               strings.TrimSpace(order.Number),
		UserID:               strings.TrimSpace(order.UserID),
		Status:               string(order.Status),
		Currency:             strings.ToUpper(strings.TrimSpace(order.Currency)),
		TotalAmount:          order.TotalAmount,
		PaymentMethod:        strings.TrimSpace(order.PaymentMethod),
		PaymentTransactionID: strings.TrimSpace(order.PaymentTransactionID),
		Notes:                strings.TrimSpace(order.Notes),
		Metadata:             cloneAnyMap(order.Metadata),
		CreatedAt:            order.CreatedAt.UTC(),
		UpdatedAt:            order.UpdatedAt.UTC(),
	}
	if order.PaymentCompletedAt != nil {
		ts := order.PaymentCompletedAt.UTC()
		doc.PaymentCompletedAt = &ts
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                   id,
		Number:               doc.Number,
		UserID:               doc.UserID,
		Status:               domain.OrderStatus(doc.Status),
		Currency:             doc.Currency,
		TotalAmount:          doc.TotalAmount,
		PaymentMethod:        doc.PaymentMethod,
		PaymentTransactionID: doc.PaymentTransactionID,
		Notes:                doc.Notes,
		Metadata:             cloneAnyMap(doc.Metadata),
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}
	if doc.PaymentCompletedAt != nil {
		ts := *doc.PaymentCompletedAt
		order.PaymentCompletedAt = &ts
	}
	return order
}

type orderDocument struct {
	Number               string         `firestore:"number"`
	UserID               string         `firestore:"userId"`
	Status               string         `firestore:"status"`
	Currency             string         `firestore:"currency"`
	TotalAmount          int64          `firestore:"totalAmount"`
	PaymentMethod        string         `firestore:"paymentMethod,omitempty"`
	PaymentTransactionID string         `firestore:"paymentTransactionId,omitempty"`
	Notes                string         `firestore:"notes,omitempty"`
	Metadata             map[string]any `firestore:"metadata,omitempty"`
	Flags                map[string]any `firestore:"flags,omitempty"`
	CreatedAt            time.Time      `firestore:"createdAt"`
	UpdatedAt            time.Time      `firestore:"updatedAt"`
	PaymentCompletedAt   *time.Time     `firestore:"paymentCompletedAt,omitempty"`
}

type orderNumberDocument struct {
	OrderID    string    `firestore:"orderId"`
	ReservedAt time.Time `firestore:"reservedAt"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
