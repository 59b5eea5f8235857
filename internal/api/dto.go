// Package api exposes the JSON HTTP surface. Every monetary field crosses
// this boundary as an exact decimal string; binary floats never appear in a
// payload.
package api

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tripledger/tripledger/internal/allocation"
	"github.com/tripledger/tripledger/internal/calculator"
	"github.com/tripledger/tripledger/internal/models"
	"github.com/tripledger/tripledger/internal/money"
	"github.com/tripledger/tripledger/internal/rounding"
)

type itemAssignmentDTO struct {
	Kind   string            `json:"kind"`
	Users  []string          `json:"users"`
	Shares map[string]string `json:"shares,omitempty"`
}

type lineItemDTO struct {
	ID                string            `json:"id,omitempty"`
	Name              string            `json:"name"`
	Quantity          string            `json:"quantity"`
	UnitPrice         string            `json:"unit_price"`
	Taxable           bool              `json:"taxable,omitempty"`
	ServiceChargeable bool              `json:"service_chargeable,omitempty"`
	Assignment        itemAssignmentDTO `json:"assignment"`
}

type extraDTO struct {
	Name  string `json:"name,omitempty"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
	Base  string `json:"base,omitempty"`
}

type extrasDTO struct {
	Tax       *extraDTO  `json:"tax,omitempty"`
	Tip       *extraDTO  `json:"tip,omitempty"`
	Fees      []extraDTO `json:"fees,omitempty"`
	Discounts []extraDTO `json:"discounts,omitempty"`
}

type ruleDTO struct {
	AbsoluteSplitMode string `json:"absolute_split_mode,omitempty"`
	RoundingStep      string `json:"rounding_step,omitempty"`
	RoundingMode      string `json:"rounding_mode,omitempty"`
	RemainderPolicy   string `json:"remainder_policy,omitempty"`
}

type expenseRequest struct {
	TripID       string            `json:"trip_id"`
	PayerID      string            `json:"payer_id"`
	Description  string            `json:"description,omitempty"`
	CategoryID   string            `json:"category_id,omitempty"`
	Currency     string            `json:"currency"`
	Amount       string            `json:"amount,omitempty"`
	SplitType    string            `json:"split_type"`
	Participants []string          `json:"participants,omitempty"`
	Weights      map[string]string `json:"weights,omitempty"`
	Items        []lineItemDTO     `json:"items,omitempty"`
	Extras       *extrasDTO        `json:"extras,omitempty"`
	Rule         *ruleDTO          `json:"rule,omitempty"`
}

type issueDTO struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Blocking bool   `json:"blocking"`
}

type itemContributionDTO struct {
	ItemID        string `json:"item_id"`
	ItemName      string `json:"item_name"`
	Quantity      string `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	AssignedShare string `json:"assigned_share"`
	Amount        string `json:"amount"`
}

type breakdownDTO struct {
	UserID             string                `json:"user_id"`
	ItemsSubtotal      string                `json:"items_subtotal"`
	Discounts          string                `json:"discounts"`
	Tax                string                `json:"tax"`
	Fees               string                `json:"fees"`
	Tip                string                `json:"tip"`
	RoundingAdjustment string                `json:"rounding_adjustment"`
	Total              string                `json:"total"`
	Items              []itemContributionDTO `json:"items,omitempty"`
}

type expenseResponse struct {
	ID                 string                  `json:"id"`
	TripID             string                  `json:"trip_id"`
	PayerID            string                  `json:"payer_id"`
	Description        string                  `json:"description,omitempty"`
	CategoryID         string                  `json:"category_id,omitempty"`
	Currency           string                  `json:"currency"`
	Amount             string                  `json:"amount"`
	SplitType          string                  `json:"split_type"`
	Participants       []string                `json:"participants"`
	ParticipantAmounts map[string]string       `json:"participant_amounts,omitempty"`
	Breakdown          map[string]breakdownDTO `json:"breakdown,omitempty"`
	Issues             []issueDTO              `json:"issues,omitempty"`
	CreatedAt          int64                   `json:"created_at"`
}

type summaryDTO struct {
	UserID    string `json:"user_id"`
	TotalPaid string `json:"total_paid"`
	TotalOwed string `json:"total_owed"`
	Net       string `json:"net"`
}

type transferDTO struct {
	ID         string `json:"id,omitempty"`
	TripID     string `json:"trip_id"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	ComputedAt int64  `json:"computed_at"`
	IsSettled  bool   `json:"is_settled"`
	SettledAt  int64  `json:"settled_at,omitempty"`
}

type categorySpendingDTO struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	Amount       string `json:"amount"`
	Color        string `json:"color,omitempty"`
	Icon         string `json:"icon,omitempty"`
}

type personCategorySpendingDTO struct {
	UserID     string                `json:"user_id"`
	Total      string                `json:"total"`
	Categories []categorySpendingDTO `json:"categories"`
}

type settlementResponse struct {
	TripID           string                               `json:"trip_id"`
	Currency         string                               `json:"currency"`
	Summaries        map[string]summaryDTO                `json:"summaries"`
	Transfers        []transferDTO                        `json:"transfers"`
	CategorySpending map[string]personCategorySpendingDTO `json:"category_spending,omitempty"`
	Warnings         []issueDTO                           `json:"warnings,omitempty"`
}

type paymentRequest struct {
	TripID     string `json:"trip_id"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Note       string `json:"note,omitempty"`
}

type categoryDTO struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

func (r *expenseRequest) toModel() (*models.Expense, error) {
	expense := &models.Expense{
		TripID:      r.TripID,
		PayerID:     r.PayerID,
		Description: r.Description,
		CategoryID:  r.CategoryID,
		Currency:    r.Currency,
	}

	if r.Amount != "" {
		amount, err := money.Parse(r.Amount)
		if err != nil {
			return nil, err
		}
		expense.Amount = amount
	}

	switch models.SplitType(r.SplitType) {
	case models.SplitEqual:
		expense.Split = models.EqualSplit{Users: r.Participants}
	case models.SplitWeighted:
		weights := make(map[string]decimal.Decimal, len(r.Weights))
		for user, w := range r.Weights {
			weight, err := money.Parse(w)
			if err != nil {
				return nil, fmt.Errorf("weight for %s: %w", user, err)
			}
			weights[user] = weight
		}
		expense.Split = models.WeightedSplit{Users: r.Participants, Weights: weights}
	case models.SplitItemized:
		// Canonical amounts are computed by the service; the split is
		// seeded with the participant order only.
		expense.Split = models.ItemizedSplit{Users: r.Participants}
	default:
		return nil, fmt.Errorf("unknown split type %q", r.SplitType)
	}

	for _, dto := range r.Items {
		item, err := dto.toModel()
		if err != nil {
			return nil, err
		}
		expense.Items = append(expense.Items, item)
	}

	if r.Extras != nil {
		extras, err := r.Extras.toModel()
		if err != nil {
			return nil, err
		}
		expense.Extras = extras
	}

	if r.Rule != nil {
		rule, err := r.Rule.toModel(expense.Currency)
		if err != nil {
			return nil, err
		}
		expense.Rule = rule
	}
	return expense, nil
}

func (d lineItemDTO) toModel() (allocation.LineItem, error) {
	quantity, err := money.Parse(d.Quantity)
	if err != nil {
		return allocation.LineItem{}, fmt.Errorf("item %q quantity: %w", d.Name, err)
	}
	unitPrice, err := money.Parse(d.UnitPrice)
	if err != nil {
		return allocation.LineItem{}, fmt.Errorf("item %q unit price: %w", d.Name, err)
	}

	assignment := allocation.ItemAssignment{
		Kind:  allocation.AssignmentKind(d.Assignment.Kind),
		Users: d.Assignment.Users,
	}
	if assignment.Kind == "" {
		assignment.Kind = allocation.AssignEven
	}
	if len(d.Assignment.Shares) > 0 {
		assignment.Shares = make(map[string]decimal.Decimal, len(d.Assignment.Shares))
		for user, s := range d.Assignment.Shares {
			share, err := money.Parse(s)
			if err != nil {
				return allocation.LineItem{}, fmt.Errorf("item %q share for %s: %w", d.Name, user, err)
			}
			assignment.Shares[user] = share
		}
	}

	return allocation.LineItem{
		ID:                d.ID,
		Name:              d.Name,
		Quantity:          quantity,
		UnitPrice:         unitPrice,
		Taxable:           d.Taxable,
		ServiceChargeable: d.ServiceChargeable,
		Assignment:        assignment,
	}, nil
}

func (d *extrasDTO) toModel() (*allocation.Extras, error) {
	extras := &allocation.Extras{}
	if d.Tax != nil {
		tax, err := d.Tax.toModel()
		if err != nil {
			return nil, fmt.Errorf("tax: %w", err)
		}
		extras.Tax = &tax
	}
	if d.Tip != nil {
		tip, err := d.Tip.toModel()
		if err != nil {
			return nil, fmt.Errorf("tip: %w", err)
		}
		extras.Tip = &tip
	}
	for _, f := range d.Fees {
		fee, err := f.toModel()
		if err != nil {
			return nil, fmt.Errorf("fee %q: %w", f.Name, err)
		}
		extras.Fees = append(extras.Fees, fee)
	}
	for _, disc := range d.Discounts {
		discount, err := disc.toModel()
		if err != nil {
			return nil, fmt.Errorf("discount %q: %w", disc.Name, err)
		}
		extras.Discounts = append(extras.Discounts, discount)
	}
	return extras, nil
}

func (d extraDTO) toModel() (allocation.Extra, error) {
	value, err := money.Parse(d.Value)
	if err != nil {
		return allocation.Extra{}, err
	}
	return allocation.Extra{
		Name:  d.Name,
		Kind:  allocation.ExtraKind(d.Kind),
		Value: value,
		Base:  allocation.PercentBase(d.Base),
	}, nil
}

func (d *ruleDTO) toModel(currency string) (*allocation.Rule, error) {
	rule := allocation.DefaultRule(money.Step(currency))
	if d.AbsoluteSplitMode != "" {
		rule.AbsoluteSplitMode = allocation.AbsoluteSplitMode(d.AbsoluteSplitMode)
	}
	if d.RoundingStep != "" {
		step, err := money.Parse(d.RoundingStep)
		if err != nil {
			return nil, fmt.Errorf("rounding step: %w", err)
		}
		rule.Rounding.Step = step
	}
	if d.RoundingMode != "" {
		rule.Rounding.Mode = rounding.Mode(d.RoundingMode)
	}
	if d.RemainderPolicy != "" {
		rule.Rounding.RemainderPolicy = rounding.RemainderPolicy(d.RemainderPolicy)
	}
	return &rule, nil
}

func expenseToResponse(e *models.Expense, result *calculator.ItemizedResult) expenseResponse {
	resp := expenseResponse{
		ID:           e.ID,
		TripID:       e.TripID,
		PayerID:      e.PayerID,
		Description:  e.Description,
		CategoryID:   e.CategoryID,
		Currency:     e.Currency,
		Amount:       money.String(e.Amount, e.Currency),
		CreatedAt:    e.CreatedAt,
		Participants: e.Split.Participants(),
		SplitType:    string(e.Split.Type()),
	}
	if itemized, ok := e.Split.(models.ItemizedSplit); ok {
		resp.ParticipantAmounts = make(map[string]string, len(itemized.ParticipantAmounts))
		for user, amount := range itemized.ParticipantAmounts {
			resp.ParticipantAmounts[user] = money.String(amount, e.Currency)
		}
	}
	if result != nil {
		resp.Issues = issuesToDTO(result.Issues)
		if result.Breakdown != nil {
			resp.Breakdown = make(map[string]breakdownDTO, len(result.Breakdown))
			for user, b := range result.Breakdown {
				resp.Breakdown[user] = breakdownToDTO(b, e.Currency)
			}
		}
	}
	return resp
}

func breakdownToDTO(b *allocation.ParticipantBreakdown, currency string) breakdownDTO {
	dto := breakdownDTO{
		UserID:             b.UserID,
		ItemsSubtotal:      b.ItemsSubtotal.String(),
		Discounts:          b.Discounts.String(),
		Tax:                b.Tax.String(),
		Fees:               b.Fees.String(),
		Tip:                b.Tip.String(),
		RoundingAdjustment: b.RoundingAdjustment.String(),
		Total:              money.String(b.Total, currency),
	}
	for _, c := range b.Items {
		dto.Items = append(dto.Items, itemContributionDTO{
			ItemID:        c.ItemID,
			ItemName:      c.ItemName,
			Quantity:      c.Quantity.String(),
			UnitPrice:     c.UnitPrice.String(),
			AssignedShare: c.AssignedShare.String(),
			Amount:        c.Amount.String(),
		})
	}
	return dto
}

func issuesToDTO(issues []calculator.Issue) []issueDTO {
	out := make([]issueDTO, 0, len(issues))
	for _, i := range issues {
		out = append(out, issueDTO{Code: string(i.Code), Message: i.Message, Blocking: i.Blocking})
	}
	return out
}

func transferToDTO(t models.MinimalTransfer) transferDTO {
	return transferDTO{
		ID:         t.ID,
		TripID:     t.TripID,
		FromUserID: t.FromUserID,
		ToUserID:   t.ToUserID,
		Amount:     money.String(t.Amount, t.Currency),
		Currency:   t.Currency,
		ComputedAt: t.ComputedAt,
		IsSettled:  t.IsSettled,
		SettledAt:  t.SettledAt,
	}
}

func settlementToResponse(tripID, currency string, result *calculator.SettlementResult) settlementResponse {
	resp := settlementResponse{
		TripID:    tripID,
		Currency:  currency,
		Summaries: make(map[string]summaryDTO, len(result.Summaries)),
		Transfers: make([]transferDTO, 0, len(result.Transfers)),
		Warnings:  issuesToDTO(result.Warnings),
	}
	for user, s := range result.Summaries {
		resp.Summaries[user] = summaryDTO{
			UserID:    s.UserID,
			TotalPaid: money.String(s.TotalPaid, currency),
			TotalOwed: money.String(s.TotalOwed, currency),
			Net:       money.String(s.Net, currency),
		}
	}
	for _, t := range result.Transfers {
		resp.Transfers = append(resp.Transfers, transferToDTO(t))
	}
	if result.CategorySpending != nil {
		resp.CategorySpending = make(map[string]personCategorySpendingDTO, len(result.CategorySpending))
		for user, spending := range result.CategorySpending {
			dto := personCategorySpendingDTO{
				UserID: spending.UserID,
				Total:  money.String(spending.Total, currency),
			}
			for _, c := range spending.Categories {
				dto.Categories = append(dto.Categories, categorySpendingDTO{
					CategoryID:   c.CategoryID,
					CategoryName: c.CategoryName,
					Amount:       money.String(c.Amount, currency),
					Color:        c.Color,
					Icon:         c.Icon,
				})
			}
			resp.CategorySpending[user] = dto
		}
	}
	return resp
}
