package store

import (
	"context"
	"sync"
	"time"

	"github.com/pointledger/pointledger/internal/models"
)

// MemoryStore implements Store with a single ledger lock. It backs the
// memory STORE_BACKEND for development and the test suite; the Postgres
// implementation is the production one.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]int64
	requests map[int64]models.PaymentRequest
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]int64),
		requests: make(map[int64]models.PaymentRequest),
		nextID:   1,
	}
}

func (m *MemoryStore) GetAccount(ctx context.Context, address string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	points, ok := m.accounts[address]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return &models.Account{Address: address, Points: points}, nil
}

func (m *MemoryStore) GetOrCreateAccount(ctx context.Context, address string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	points, ok := m.accounts[address]
	if !ok {
		m.accounts[address] = 0
	}
	return &models.Account{Address: address, Points: points}, nil
}

func (m *MemoryStore) ApplyDelta(ctx context.Context, address string, delta int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	points := m.accounts[address]
	if points+delta < 0 {
		return nil, models.ErrInsufficientFunds
	}
	m.accounts[address] = points + delta
	return &models.Account{Address: address, Points: points + delta}, nil
}

func (m *MemoryStore) Transfer(ctx context.Context, sender, recipient string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	senderPoints, ok := m.accounts[sender]
	if !ok {
		return models.ErrAccountNotFound
	}
	if senderPoints < amount {
		return models.ErrInsufficientFunds
	}
	m.accounts[recipient] += amount
	m.accounts[sender] = senderPoints - amount
	return nil
}

func (m *MemoryStore) CreatePaymentRequest(ctx context.Context, creditorKey, debtorKey string, amount int64) (*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := models.PaymentRequest{
		ID:          m.nextID,
		CreditorKey: creditorKey,
		DebtorKey:   debtorKey,
		Amount:      amount,
		Status:      models.RequestStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	m.requests[req.ID] = req
	m.nextID++
	return &req, nil
}

func (m *MemoryStore) GetPaymentRequest(ctx context.Context, id int64) (*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, models.ErrRequestNotFound
	}
	return &req, nil
}

func (m *MemoryStore) SettlePaymentRequest(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return models.ErrRequestNotFound
	}
	if req.Status != models.RequestStatusPending {
		return models.ErrRequestConflict
	}
	// Funds before creditor existence, matching the service's stated order.
	debtorPoints := m.accounts[req.DebtorKey]
	if debtorPoints < req.Amount {
		return models.ErrInsufficientFunds
	}
	if _, ok := m.accounts[req.CreditorKey]; !ok {
		return models.ErrAccountNotFound
	}
	m.accounts[req.DebtorKey] = debtorPoints - req.Amount
	m.accounts[req.CreditorKey] += req.Amount
	req.Status = models.RequestStatusAccepted
	m.requests[id] = req
	return nil
}

func (m *MemoryStore) Close() {}
