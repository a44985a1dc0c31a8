/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

MONEY ON THE WIRE:
  All amounts travel as decimal strings ("12.34"), never JSON numbers.
  Clients must not lose precision in transit; parsing and granularity
  checks happen server-side via money.Parse.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: The domain model these mirror
*/
package api

import (
	"time"

	"github.com/warp/split-engine/engine"
	"github.com/warp/split-engine/money"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateGroupRequest is the request to create a group.
type CreateGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// SplitInput is one participant's share in an expense request. Amount is
// required for exact splits, Percentage for percentage splits; equal
// splits carry neither.
type SplitInput struct {
	UserID     string `json:"user_id"`
	Amount     string `json:"amount,omitempty"`
	Percentage string `json:"percentage,omitempty"`
}

// CreateExpenseRequest is the request to record an expense. The same body
// is used for edits (PUT), which supersede the original.
type CreateExpenseRequest struct {
	PaidBy       string       `json:"paid_by"`
	Amount       string       `json:"amount"`
	Currency     string       `json:"currency"`
	SplitType    string       `json:"split_type"`
	Participants []string     `json:"participants"`
	Splits       []SplitInput `json:"splits,omitempty"`
}

// DeleteRequest carries the acting user for soft deletes.
type DeleteRequest struct {
	DeletedBy string `json:"deleted_by"`
}

// CreateSettlementRequest is the request to record a direct payment.
type CreateSettlementRequest struct {
	PayerID  string `json:"payer_id"`
	PayeeID  string `json:"payee_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Date     string `json:"date,omitempty"` // RFC3339; defaults to now
	Note     string `json:"note,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// GroupDTO represents a group in API responses.
type GroupDTO struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	CreatedAt string   `json:"created_at"`
}

// SplitDTO is one participant's allocated share.
type SplitDTO struct {
	UserID     string `json:"user_id"`
	Amount     string `json:"amount"`
	Percentage string `json:"percentage,omitempty"`
}

// ExpenseDTO represents an expense in API responses.
type ExpenseDTO struct {
	ID           string     `json:"id"`
	GroupID      string     `json:"group_id"`
	PaidBy       string     `json:"paid_by"`
	Amount       string     `json:"amount"`
	Currency     string     `json:"currency"`
	SplitType    string     `json:"split_type"`
	Participants []string   `json:"participants"`
	Splits       []SplitDTO `json:"splits"`
	CreatedAt    string     `json:"created_at"`
	UpdatedAt    string     `json:"updated_at"`
	DeletedAt    string     `json:"deleted_at,omitempty"`
	DeletedBy    string     `json:"deleted_by,omitempty"`
	SupersededBy string     `json:"superseded_by,omitempty"`
}

// SettlementDTO represents a settlement in API responses.
type SettlementDTO struct {
	ID        string `json:"id"`
	GroupID   string `json:"group_id"`
	PayerID   string `json:"payer_id"`
	PayeeID   string `json:"payee_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Date      string `json:"date"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

// TransferDTO is one simplified debt instruction.
type TransferDTO struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// UserBalanceDTO is one user's position within a single currency.
type UserBalanceDTO struct {
	Owes   map[string]string `json:"owes"`
	OwedBy map[string]string `json:"owed_by"`
	Net    string            `json:"net_balance"`
}

// CurrencyBalanceDTO is the balance view for one currency.
type CurrencyBalanceDTO struct {
	Users     map[string]UserBalanceDTO `json:"users"`
	Transfers []TransferDTO             `json:"simplified_debts"`
}

// BalanceDTO is the full group balance response.
type BalanceDTO struct {
	GroupID     string                        `json:"group_id"`
	Currencies  map[string]CurrencyBalanceDTO `json:"currencies"`
	Version     int64                         `json:"version"`
	LastUpdated string                        `json:"last_updated"`
	State       string                        `json:"state,omitempty"` // stale|recomputing|fresh, per currency key staleness
}

// DebtsDTO is the simplified-debts response, keyed by currency.
type DebtsDTO struct {
	GroupID string                   `json:"group_id"`
	Debts   map[string][]TransferDTO `json:"debts"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toGroupDTO(g *engine.Group) GroupDTO {
	members := make([]string, len(g.Members))
	for i, m := range g.Members {
		members[i] = string(m)
	}
	return GroupDTO{
		ID:        string(g.ID),
		Name:      g.Name,
		Members:   members,
		CreatedAt: g.CreatedAt.Format(time.RFC3339),
	}
}

func toExpenseDTO(e *engine.Expense) ExpenseDTO {
	dto := ExpenseDTO{
		ID:           string(e.ID),
		GroupID:      string(e.GroupID),
		PaidBy:       string(e.PaidBy),
		Amount:       e.Amount.String(),
		Currency:     string(e.Currency()),
		SplitType:    string(e.SplitType),
		Participants: make([]string, len(e.Participants)),
		Splits:       make([]SplitDTO, len(e.Splits)),
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    e.UpdatedAt.Format(time.RFC3339),
		DeletedBy:    string(e.DeletedBy),
		SupersededBy: string(e.SupersededBy),
	}
	for i, p := range e.Participants {
		dto.Participants[i] = string(p)
	}
	for i, s := range e.Splits {
		sd := SplitDTO{UserID: string(s.UserID), Amount: s.Amount.String()}
		if s.Percentage != nil {
			sd.Percentage = s.Percentage.String()
		}
		dto.Splits[i] = sd
	}
	if e.DeletedAt != nil {
		dto.DeletedAt = e.DeletedAt.Format(time.RFC3339)
	}
	return dto
}

func toExpenseDTOs(expenses []engine.Expense) []ExpenseDTO {
	dtos := make([]ExpenseDTO, len(expenses))
	for i := range expenses {
		dtos[i] = toExpenseDTO(&expenses[i])
	}
	return dtos
}

func toSettlementDTO(s *engine.Settlement) SettlementDTO {
	return SettlementDTO{
		ID:        string(s.ID),
		GroupID:   string(s.GroupID),
		PayerID:   string(s.PayerID),
		PayeeID:   string(s.PayeeID),
		Amount:    s.Amount.String(),
		Currency:  string(s.Currency()),
		Date:      s.Date.Format(time.RFC3339),
		Note:      s.Note,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

func toSettlementDTOs(settlements []engine.Settlement) []SettlementDTO {
	dtos := make([]SettlementDTO, len(settlements))
	for i := range settlements {
		dtos[i] = toSettlementDTO(&settlements[i])
	}
	return dtos
}

func toBalanceDTO(bal *engine.GroupBalance) BalanceDTO {
	dto := BalanceDTO{
		GroupID:     string(bal.GroupID),
		Currencies:  make(map[string]CurrencyBalanceDTO, len(bal.Currencies)),
		Version:     bal.Version,
		LastUpdated: bal.LastUpdated.Format(time.RFC3339),
	}
	for ccy, cb := range bal.Currencies {
		cdto := CurrencyBalanceDTO{
			Users:     make(map[string]UserBalanceDTO, len(cb.Users)),
			Transfers: toTransferDTOs(cb.Transfers),
		}
		for u, ub := range cb.Users {
			udto := UserBalanceDTO{
				Owes:   make(map[string]string, len(ub.Owes)),
				OwedBy: make(map[string]string, len(ub.OwedBy)),
				Net:    ub.Net.String(),
			}
			for k, v := range ub.Owes {
				udto.Owes[string(k)] = v.String()
			}
			for k, v := range ub.OwedBy {
				udto.OwedBy[string(k)] = v.String()
			}
			cdto.Users[string(u)] = udto
		}
		dto.Currencies[string(ccy)] = cdto
	}
	return dto
}

func toTransferDTOs(transfers []engine.Transfer) []TransferDTO {
	dtos := make([]TransferDTO, len(transfers))
	for i, t := range transfers {
		dtos[i] = TransferDTO{From: string(t.From), To: string(t.To), Amount: t.Amount.String()}
	}
	return dtos
}

func toDebtsDTO(groupID engine.GroupID, debts map[money.Currency][]engine.Transfer) DebtsDTO {
	dto := DebtsDTO{
		GroupID: string(groupID),
		Debts:   make(map[string][]TransferDTO, len(debts)),
	}
	for ccy, ts := range debts {
		dto.Debts[string(ccy)] = toTransferDTOs(ts)
	}
	return dto
}
