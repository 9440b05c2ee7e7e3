package notifications

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Record — плоская форма хранения: одна строка на нотификацию любой
// категории. Инвариант: заполнены ровно те опциональные поля, которые
// принадлежат категории записи, остальные NULL.
type Record struct {
	ID          uint64
	RecipientID uint64
	Category    string
	Timestamp   time.Time
	IsRead      bool

	ContractID     *uint64
	IsAccepted     *bool
	ProductID      *uint64
	OrderID        *uint64
	ShippingState  *string
	DeliveryDate   *time.Time
	ExpirationDate *time.Time
}

// ErrUnknownCategory: запись с категорией вне закрытого набора.
var ErrUnknownCategory = errors.New("unknown notification category")

// MalformedRecordError: у записи отсутствует поле, обязательное для её
// категории.
type MalformedRecordError struct {
	Category string
	Field    string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record: missing %s", e.Category, e.Field)
}

// Encode переводит вариант в плоскую запись. Запись строится с нуля, поэтому
// все поля чужих категорий гарантированно NULL — на этом держится инвариант
// плоской схемы, переиспользовать старый Record здесь нельзя.
func Encode(n Notification) (Record, error) {
	b := BaseOf(n)
	rec := Record{
		ID:          b.ID,
		RecipientID: b.RecipientID,
		Category:    n.Category(),
		Timestamp:   b.Timestamp,
		IsRead:      b.IsRead,
	}

	switch v := n.(type) {
	case *ContractRenewalAnswer:
		rec.ContractID = &v.ContractID
		rec.IsAccepted = &v.IsAccepted
	case *ContractRenewalWaitlist:
		rec.ProductID = &v.ProductID
	case *Outbidded:
		rec.ProductID = &v.ProductID
	case *OrderShippingProgress:
		rec.OrderID = &v.OrderID
		rec.ShippingState = &v.ShippingState
		rec.DeliveryDate = &v.DeliveryDate
	case *PaymentConfirmation:
		rec.ProductID = &v.ProductID
		rec.OrderID = &v.OrderID
	case *ProductRemoved:
		rec.ProductID = &v.ProductID
	case *ProductAvailable:
		rec.ProductID = &v.ProductID
	case *ContractRenewalRequest:
		rec.ContractID = &v.ContractID
	case *ContractExpiration:
		rec.ContractID = &v.ContractID
		rec.ExpirationDate = &v.ExpirationDate
	default:
		return Record{}, errors.Errorf("encode: unsupported notification type %T", n)
	}

	return rec, nil
}

// Decode восстанавливает типизированный вариант из плоской записи.
func Decode(rec Record) (Notification, error) {
	base := Base{
		ID:          rec.ID,
		RecipientID: rec.RecipientID,
		Timestamp:   rec.Timestamp,
		IsRead:      rec.IsRead,
	}

	switch rec.Category {
	case CategoryContractRenewalAnswer:
		if rec.ContractID == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "contract_id"}
		}
		if rec.IsAccepted == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "is_accepted"}
		}
		return &ContractRenewalAnswer{Base: base, ContractID: *rec.ContractID, IsAccepted: *rec.IsAccepted}, nil

	case CategoryContractRenewalWaitlist:
		if rec.ProductID == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "product_id"}
		}
		return &ContractRenewalWaitlist{Base: base, ProductID: *rec.ProductID}, nil

	case CategoryOutbidded:
		if rec.ProductID == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "product_id"}
		}
		return &Outbidded{Base: base, ProductID: *rec.ProductID}, nil

	case CategoryOrderShippingProgress:
		if rec.OrderID == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "order_id"}
		}
		if rec.ShippingState == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "shipping_state"}
		}
		if rec.DeliveryDate == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "delivery_date"}
		}
		return &OrderShippingProgress{
			Base:          base,
			OrderID:       *rec.OrderID,
			ShippingState: *rec.ShippingState,
			DeliveryDate:  *rec.DeliveryDate,
		}, nil

	case CategoryPaymentConfirmation:
		if rec.ProductID == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "product_id"}
		}
		if rec.OrderID == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "order_id"}
		}
		return &PaymentConfirmation{Base: base, ProductID: *rec.ProductID, OrderID: *rec.OrderID}, nil

	case CategoryProductRemoved:
		if rec.ProductID == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "product_id"}
		}
		return &ProductRemoved{Base: base, ProductID: *rec.ProductID}, nil

	case CategoryProductAvailable:
		if rec.ProductID == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "product_id"}
		}
		return &ProductAvailable{Base: base, ProductID: *rec.ProductID}, nil

	case CategoryContractRenewalRequest:
		if rec.ContractID == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "contract_id"}
		}
		return &ContractRenewalRequest{Base: base, ContractID: *rec.ContractID}, nil

	case CategoryContractExpiration:
		if rec.ContractID == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "contract_id"}
		}
		if rec.ExpirationDate == nil {
			return nil, &MalformedRecordError{Category: rec.Category, Field: "expiration_date"}
		}
		return &ContractExpiration{Base: base, ContractID: *rec.ContractID, ExpirationDate: *rec.ExpirationDate}, nil
	}

	return nil, errors.Wrapf(ErrUnknownCategory, "%q", rec.Category)
}
