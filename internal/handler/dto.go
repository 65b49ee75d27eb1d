package handler

import (
	"time"

	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/money"
	"github.com/iliyamo/booking-engine/internal/service"
)

// Money fields are rupee decimals on the wire (money.Amount handles the
// conversion); dates are YYYY-MM-DD strings.

type createBookingRequest struct {
	CustomerID           uint64                `json:"customerId" validate:"required"`
	ListingID            uint64                `json:"listingId" validate:"required"`
	SlotID               uint64                `json:"slotId" validate:"required_without=DateRangeID"`
	DateRangeID          uint64                `json:"dateRangeId" validate:"required_without=SlotID"`
	BookingStartDate     string                `json:"bookingStartDate" validate:"omitempty,datetime=2006-01-02"`
	BookingEndDate       string                `json:"bookingEndDate" validate:"omitempty,datetime=2006-01-02"`
	ParticipantCount     int                   `json:"participantCount" validate:"required,gte=1"`
	Participants         []model.Participant   `json:"participants"`
	ContactDetails       model.ContactDetails  `json:"contactDetails"`
	SelectedAddons       []model.SelectedAddon `json:"selectedAddons" validate:"omitempty,max=50,dive"`
	Subtotal             *money.Amount         `json:"subtotal"`
	AddonsTotal          *money.Amount         `json:"addonsTotal" validate:"omitempty,gte=0,lte=10000000000"`
	TaxAmount            *money.Amount         `json:"taxAmount"`
	DiscountAmount       *money.Amount         `json:"discountAmount" validate:"omitempty,gte=0"`
	TotalAmount          *money.Amount         `json:"totalAmount"`
	AmountPaidNow        *money.Amount         `json:"amountPaidNow" validate:"omitempty,gte=0"`
	AmountPendingAtVenue *money.Amount         `json:"amountPendingAtVenue"`
	PaymentMethod        string                `json:"paymentMethod"`
	PromoCode            *string               `json:"promoCode" validate:"omitempty,max=50"`
}

type initiateRescheduleRequest struct {
	BookingID          uint64 `json:"bookingId" validate:"required"`
	RescheduleReason   string `json:"rescheduleReason" validate:"required,max=1000"`
	NewBatchID         uint64 `json:"newBatchId"`
	NewSlotID          uint64 `json:"newSlotId"`
	NewDateRangeID     uint64 `json:"newDateRangeId"`
	NewRentalStartDate string `json:"newRentalStartDate" validate:"omitempty,datetime=2006-01-02"`
	NewRentalEndDate   string `json:"newRentalEndDate" validate:"omitempty,datetime=2006-01-02"`
}

type reviewRescheduleRequest struct {
	Decision            string        `json:"decision" validate:"required"`
	AdminNotes          *string       `json:"adminNotes" validate:"omitempty,max=2000"`
	RescheduleFeeAmount *money.Amount `json:"rescheduleFeeAmount"`
}

type payRescheduleRequest struct {
	PaymentReference string `json:"paymentReference" validate:"omitempty,max=100"`
}

type bookingResponse struct {
	ID               uint64                `json:"id"`
	BookingReference string                `json:"bookingReference"`
	CustomerID       uint64                `json:"customerId"`
	ListingID        uint64                `json:"listingId"`
	OperatorID       uint64                `json:"operatorId"`
	Format           model.Format          `json:"bookingFormat"`
	SlotID           uint64                `json:"slotId,omitempty"`
	DateRangeID      uint64                `json:"dateRangeId,omitempty"`
	BookingStartDate string                `json:"bookingStartDate"`
	BookingEndDate   string                `json:"bookingEndDate"`
	ParticipantCount int                   `json:"participantCount"`
	ReservedUnits    int                   `json:"reservedUnits"`
	TotalDays        int                   `json:"totalDays"`
	BasePrice        money.Amount          `json:"basePrice"`
	TotalAmount      money.Amount          `json:"totalAmount"`
	Status           model.BookingStatus   `json:"status"`
	PaymentMethod    model.PaymentMethod   `json:"paymentMethod"`
	Pricing          model.PricingSnapshot `json:"pricing"`
	Participants     []model.Participant   `json:"participants"`
	ContactDetails   model.ContactDetails  `json:"contactDetails"`
	SelectedAddons   []model.SelectedAddon `json:"selectedAddons"`
	PromoCode        *string               `json:"promoCode,omitempty"`
	CancelledAt      *time.Time            `json:"cancelledAt,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}

// paymentResponse hides the platform's cut (commission, TCS and the
// seller's net) from everyone but admins.
type paymentResponse struct {
	ID                     uint64                 `json:"id"`
	BookingID              uint64                 `json:"bookingId"`
	BasePrice              money.Amount           `json:"basePrice"`
	Quantity               int                    `json:"quantity"`
	SubtotalAmount         money.Amount           `json:"subtotalAmount"`
	AddonsAmount           money.Amount           `json:"addonsAmount"`
	DiscountAmount         money.Amount           `json:"discountAmount"`
	TaxableAmount          money.Amount           `json:"taxableAmount"`
	TaxRateBP              int                    `json:"taxRateBp"`
	TaxAmount              money.Amount           `json:"taxAmount"`
	TotalAmount            money.Amount           `json:"totalAmount"`
	AmountPaidOnline       money.Amount           `json:"amountPaidOnline"`
	AmountToCollectOffline money.Amount           `json:"amountToCollectOffline"`
	PaymentMethod          model.PaymentMethod    `json:"paymentMethod"`
	SettlementStatus       model.SettlementStatus `json:"settlementStatus"`
	CommissionRateBP       *int                   `json:"commissionRateBp,omitempty"`
	PlatformCommission     *money.Amount          `json:"platformCommission,omitempty"`
	TCSRateBP              *int                   `json:"tcsRateBp,omitempty"`
	TCSAmount              *money.Amount          `json:"tcsAmount,omitempty"`
	SellerGrossEarnings    *money.Amount          `json:"sellerGrossEarnings,omitempty"`
	NetPayableToSeller     *money.Amount          `json:"netPayableToSeller,omitempty"`
	CreatedAt              time.Time              `json:"createdAt"`
}

type bookingDetailResponse struct {
	Booking          bookingResponse  `json:"booking"`
	BookingPayment   *paymentResponse `json:"bookingPayment"`
	BookingReference string           `json:"bookingReference"`
}

type rescheduleResponse struct {
	ID                  uint64                 `json:"id"`
	BookingID           uint64                 `json:"bookingId"`
	Format              model.Format           `json:"bookingFormat"`
	OldInventoryID      uint64                 `json:"oldInventoryId"`
	NewInventoryID      uint64                 `json:"newInventoryId"`
	OldStartDate        string                 `json:"oldStartDate"`
	OldEndDate          string                 `json:"oldEndDate"`
	NewStartDate        string                 `json:"newStartDate"`
	NewEndDate          string                 `json:"newEndDate"`
	Units               int                    `json:"units"`
	RescheduleReason    string                 `json:"rescheduleReason"`
	Status              model.RescheduleStatus `json:"status"`
	RescheduleFeeAmount money.Amount           `json:"rescheduleFeeAmount"`
	IsPaymentRequired   bool                   `json:"isPaymentRequired"`
	PaymentStatus       string                 `json:"paymentStatus"`
	PaymentReference    *string                `json:"paymentReference,omitempty"`
	PaidAt              *time.Time             `json:"paidAt,omitempty"`
	AdminNotes          *string                `json:"adminNotes,omitempty"`
	ReviewedBy          *uint64                `json:"reviewedBy,omitempty"`
	ReviewedAt          *time.Time             `json:"reviewedAt,omitempty"`
	ProcessedAt         *time.Time             `json:"processedAt,omitempty"`
	InitiatedBy         uint64                 `json:"initiatedBy"`
	InitiatorRole       model.Role             `json:"initiatorRole"`
	TargetOperatorID    uint64                 `json:"targetOperatorId"`
	CreatedAt           time.Time              `json:"createdAt"`
	UpdatedAt           time.Time              `json:"updatedAt"`
}

func toBooking(b model.Booking) bookingResponse {
	participants, addons := b.Participants, b.Addons
	if participants == nil {
		participants = []model.Participant{}
	}
	if addons == nil {
		addons = []model.SelectedAddon{}
	}
	return bookingResponse{
		ID:               b.ID,
		BookingReference: b.Reference,
		CustomerID:       b.CustomerID,
		ListingID:        b.ListingID,
		OperatorID:       b.OperatorID,
		Format:           b.Inventory.Format,
		SlotID:           b.SlotID(),
		DateRangeID:      b.DateRangeID(),
		BookingStartDate: b.StartDate.Format(model.DateLayout),
		BookingEndDate:   b.EndDate.Format(model.DateLayout),
		ParticipantCount: b.ParticipantCount,
		ReservedUnits:    b.ReservedUnits,
		TotalDays:        b.TotalDays,
		BasePrice:        b.BasePrice,
		TotalAmount:      b.TotalAmount,
		Status:           b.Status,
		PaymentMethod:    b.PaymentMethod,
		Pricing:          b.Pricing,
		Participants:     participants,
		ContactDetails:   b.Contact,
		SelectedAddons:   addons,
		PromoCode:        b.PromoCode,
		CancelledAt:      b.CancelledAt,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func toPayment(p *model.BookingPayment, admin bool) *paymentResponse {
	if p == nil {
		return nil
	}
	out := &paymentResponse{
		ID:                     p.ID,
		BookingID:              p.BookingID,
		BasePrice:              p.BasePrice,
		Quantity:               p.Quantity,
		SubtotalAmount:         p.SubtotalAmount,
		AddonsAmount:           p.AddonsAmount,
		DiscountAmount:         p.DiscountAmount,
		TaxableAmount:          p.TaxableAmount,
		TaxRateBP:              p.TaxRateBP,
		TaxAmount:              p.TaxAmount,
		TotalAmount:            p.TotalAmount,
		AmountPaidOnline:       p.AmountPaidOnline,
		AmountToCollectOffline: p.AmountToCollectOffline,
		PaymentMethod:          p.PaymentMethod,
		SettlementStatus:       p.SettlementStatus,
		CreatedAt:              p.CreatedAt,
	}
	if admin {
		commissionBP, tcsBP := p.CommissionRateBP, p.TCSRateBP
		commission, tcs, gross, net := p.PlatformCommission, p.TCSAmount, p.SellerGrossEarnings, p.NetPayableToSeller
		out.CommissionRateBP, out.PlatformCommission = &commissionBP, &commission
		out.TCSRateBP, out.TCSAmount = &tcsBP, &tcs
		out.SellerGrossEarnings, out.NetPayableToSeller = &gross, &net
	}
	return out
}

func toDetail(d service.BookingDetail, admin bool) bookingDetailResponse {
	return bookingDetailResponse{
		Booking:          toBooking(d.Booking),
		BookingPayment:   toPayment(d.Payment, admin),
		BookingReference: d.Booking.Reference,
	}
}

func toReschedule(r model.Reschedule) rescheduleResponse {
	return rescheduleResponse{
		ID:                  r.ID,
		BookingID:           r.BookingID,
		Format:              r.Format,
		OldInventoryID:      r.OldInventoryID,
		NewInventoryID:      r.NewInventoryID,
		OldStartDate:        r.OldStartDate.Format(model.DateLayout),
		OldEndDate:          r.OldEndDate.Format(model.DateLayout),
		NewStartDate:        r.NewStartDate.Format(model.DateLayout),
		NewEndDate:          r.NewEndDate.Format(model.DateLayout),
		Units:               r.Units,
		RescheduleReason:    r.Reason,
		Status:              r.Status,
		RescheduleFeeAmount: r.Fee,
		IsPaymentRequired:   r.IsPaymentRequired,
		PaymentStatus:       r.PaymentStatus,
		PaymentReference:    r.PaymentReference,
		PaidAt:              r.PaidAt,
		AdminNotes:          r.AdminNotes,
		ReviewedBy:          r.ReviewedBy,
		ReviewedAt:          r.ReviewedAt,
		ProcessedAt:         r.ProcessedAt,
		InitiatedBy:         r.InitiatedBy,
		InitiatorRole:       r.InitiatorRole,
		TargetOperatorID:    r.TargetOperatorID,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func toReschedules(rows []model.Reschedule) []rescheduleResponse {
	out := make([]rescheduleResponse, len(rows))
	for i, r := range rows {
		out[i] = toReschedule(r)
	}
	return out
}
