package notifications

import (
	"fmt"
	"time"
)

// Категории нотификаций. Значения совпадают с колонкой category
// в плоской таблице хранения.
const (
	CategoryContractRenewalAnswer   = "CONTRACT_RENEWAL_ANS"
	CategoryContractRenewalWaitlist = "CONTRACT_RENEWAL_WAITLIST"
	CategoryOutbidded               = "OUTBIDDED"
	CategoryOrderShippingProgress   = "ORDER_SHIPPING_PROGRESS"
	CategoryPaymentConfirmation     = "PAYMENT_CONFIRMATION"
	CategoryProductRemoved          = "PRODUCT_REMOVED"
	CategoryProductAvailable        = "PRODUCT_AVAILABLE"
	CategoryContractRenewalRequest  = "CONTRACT_RENEWAL_REQ"
	CategoryContractExpiration      = "CONTRACT_EXPIRATION"
)

// Base — общие поля всех девяти вариантов.
type Base struct {
	ID          uint64
	RecipientID uint64
	Timestamp   time.Time
	IsRead      bool
}

// Notification — закрытое объединение девяти вариантов. Вариант-специфичные
// поля живут только в конкретных структурах; в плоскую форму и обратно их
// переводит исключительно кодек, напрямую в Record никто не пишет.
type Notification interface {
	Category() string
	Title() string
	Content() string
	base() *Base
}

func (b *Base) base() *Base { return b }

// BaseOf returns the shared fields of any variant.
func BaseOf(n Notification) *Base { return n.base() }

type ContractRenewalAnswer struct {
	Base
	ContractID uint64
	IsAccepted bool
}

func (*ContractRenewalAnswer) Category() string { return CategoryContractRenewalAnswer }
func (*ContractRenewalAnswer) Title() string    { return "Contract Renewal Answer" }
func (n *ContractRenewalAnswer) Content() string {
	if n.IsAccepted {
		return fmt.Sprintf("Contract %d has been renewed. You can download it below.", n.ContractID)
	}
	return fmt.Sprintf("Contract %d has not been renewed: the owner refused the request.", n.ContractID)
}

type ContractRenewalWaitlist struct {
	Base
	ProductID uint64
}

func (*ContractRenewalWaitlist) Category() string { return CategoryContractRenewalWaitlist }
func (*ContractRenewalWaitlist) Title() string    { return "Contract Renewal in Waitlist" }
func (n *ContractRenewalWaitlist) Content() string {
	return fmt.Sprintf("The borrower of product %d, which you are waitlisted for, renewed their contract.", n.ProductID)
}

type Outbidded struct {
	Base
	ProductID uint64
}

func (*Outbidded) Category() string { return CategoryOutbidded }
func (*Outbidded) Title() string    { return "Outbidded" }
func (n *Outbidded) Content() string {
	return fmt.Sprintf("Another buyer placed a higher bid on product %d. Place a new bid now.", n.ProductID)
}

type OrderShippingProgress struct {
	Base
	OrderID       uint64
	ShippingState string
	DeliveryDate  time.Time
}

func (*OrderShippingProgress) Category() string { return CategoryOrderShippingProgress }
func (*OrderShippingProgress) Title() string    { return "Order Shipping Update" }
func (n *OrderShippingProgress) Content() string {
	return fmt.Sprintf("Your order %d has reached a new state: %s.", n.OrderID, n.ShippingState)
}

type PaymentConfirmation struct {
	Base
	ProductID uint64
	OrderID   uint64
}

func (*PaymentConfirmation) Category() string { return CategoryPaymentConfirmation }
func (*PaymentConfirmation) Title() string    { return "Payment Confirmation" }
func (n *PaymentConfirmation) Content() string {
	return fmt.Sprintf("Order %d for product %d has been processed successfully.", n.OrderID, n.ProductID)
}

type ProductRemoved struct {
	Base
	ProductID uint64
}

func (*ProductRemoved) Category() string { return CategoryProductRemoved }
func (*ProductRemoved) Title() string    { return "Product Removed" }
func (n *ProductRemoved) Content() string {
	return fmt.Sprintf("Product %d that you were waiting for was removed from the marketplace.", n.ProductID)
}

type ProductAvailable struct {
	Base
	ProductID uint64
}

func (*ProductAvailable) Category() string { return CategoryProductAvailable }
func (*ProductAvailable) Title() string    { return "Product Available" }
func (n *ProductAvailable) Content() string {
	return fmt.Sprintf("Product %d that you were waiting for is back in stock.", n.ProductID)
}

type ContractRenewalRequest struct {
	Base
	ContractID uint64
}

func (*ContractRenewalRequest) Category() string { return CategoryContractRenewalRequest }
func (*ContractRenewalRequest) Title() string    { return "Contract Renewal Request" }
func (n *ContractRenewalRequest) Content() string {
	return fmt.Sprintf("A renewal was requested for contract %d. Please respond promptly.", n.ContractID)
}

type ContractExpiration struct {
	Base
	ContractID     uint64
	ExpirationDate time.Time
}

func (*ContractExpiration) Category() string { return CategoryContractExpiration }
func (*ContractExpiration) Title() string    { return "Contract Expiration" }
func (n *ContractExpiration) Content() string {
	return fmt.Sprintf("Contract %d is set to expire on %s.", n.ContractID, n.ExpirationDate.Format("2006-01-02"))
}
