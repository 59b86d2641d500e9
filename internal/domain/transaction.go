package domain

import (
	"time"
)

// TransactionStatus distinguishes settled from cancelled transactions.
type TransactionStatus string

const (
	StatusApproved  TransactionStatus = "approved"
	StatusCancelled TransactionStatus = "cancelled"
)

// Transaction represents a single card transaction to be classified
// and matched against the benefit catalog.
type Transaction struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	CardID string `json:"cardId"`

	Amount           int64  `json:"amount"`
	MerchantName     string `json:"merchantName"`
	MerchantCategory string `json:"merchantCategory"`
	Offline          bool   `json:"offline"`

	Status TransactionStatus `json:"status"`

	ApprovedAt time.Time `json:"approvedAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TransactionRequest is the API payload for transaction ingestion.
type TransactionRequest struct {
	UserID           string `json:"userId"`
	CardID           string `json:"cardId"`
	Amount           int64  `json:"amount"`
	MerchantName     string `json:"merchantName"`
	MerchantCategory string `json:"merchantCategory"`
	Offline          bool   `json:"offline,omitempty"`
	Status           string `json:"status,omitempty"`
	ApprovedAt       string `json:"approvedAt,omitempty"` // RFC 3339, defaults to now
}

// ToTransaction converts a request to a Transaction domain object.
// An unparseable or missing ApprovedAt falls back to now.
func (r *TransactionRequest) ToTransaction() *Transaction {
	now := time.Now().UTC()
	approvedAt := now
	if r.ApprovedAt != "" {
		if t, err := time.Parse(time.RFC3339, r.ApprovedAt); err == nil {
			approvedAt = t
		}
	}
	status := StatusApproved
	if r.Status == string(StatusCancelled) {
		status = StatusCancelled
	}
	return &Transaction{
		UserID:           r.UserID,
		CardID:           r.CardID,
		Amount:           r.Amount,
		MerchantName:     r.MerchantName,
		MerchantCategory: r.MerchantCategory,
		Offline:          r.Offline,
		Status:           status,
		ApprovedAt:       approvedAt,
		CreatedAt:        now,
	}
}

// PerformanceClassification records whether a transaction counts toward
// the card's spend-tier performance. A cancelled or excluded transaction
// carries a zero PerformanceAmount.
type PerformanceClassification struct {
	TransactionID     string    `json:"transactionId"`
	CardID            string    `json:"cardId"`
	Counted           bool      `json:"counted"`
	PerformanceAmount int64     `json:"performanceAmount"`
	Reason            string    `json:"reason,omitempty"`
	ClassifiedAt      time.Time `json:"classifiedAt"`
}

// ClassifiedTransaction pairs a transaction with its classification.
type ClassifiedTransaction struct {
	Transaction    *Transaction               `json:"transaction"`
	Classification *PerformanceClassification `json:"classification"`
}

// BenefitAggregation records the benefit granted for a transaction.
// At most one benefit applies per transaction, first match in catalog
// order.
type BenefitAggregation struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transactionId"`
	CardID        string    `json:"cardId"`
	BenefitID     string    `json:"benefitId"`
	Amount        int64     `json:"amount"`
	GrantedAt     time.Time `json:"grantedAt"`
}
