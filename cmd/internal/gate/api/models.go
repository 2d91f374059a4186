package gateapi

import (
	"time"

	"gatepass/cmd/internal/blacklist"
	"gatepass/cmd/internal/visit"
	"gatepass/cmd/visitor"
)

type inviteCreateRequest struct {
	VisitorPhone    string     `json:"visitor_phone"`
	VisitorName     string     `json:"visitor_name"`
	VisitorEmail    *string    `json:"visitor_email,omitempty"`
	Purpose         *string    `json:"purpose,omitempty"`
	ExpectedArrival *time.Time `json:"expected_arrival,omitempty"`
}

type inviteCreateResponse struct {
	Visit  visitResponse `json:"visit"`
	OTP    string        `json:"otp"`
	QRCode string        `json:"qr_code"`
}

type walkinCreateRequest struct {
	HostID       string  `json:"host_id"`
	VisitorPhone string  `json:"visitor_phone"`
	VisitorName  string  `json:"visitor_name"`
	Purpose      *string `json:"purpose,omitempty"`
}

type visitActionRequest struct {
	VisitID string `json:"visit_id"`
}

type approveResponse struct {
	Visit  visitResponse `json:"visit"`
	OTP    string        `json:"otp,omitempty"`
	QRCode string        `json:"qr_code,omitempty"`
}

type checkinOTPRequest struct {
	OTP            string `json:"otp"`
	ConsentGiven   bool   `json:"consent_given"`
	OverrideWindow bool   `json:"override_window,omitempty"`
}

type checkinQRRequest struct {
	QRCode         string `json:"qr_code"`
	ConsentGiven   bool   `json:"consent_given"`
	OverrideWindow bool   `json:"override_window,omitempty"`
}

type checkinResponse struct {
	Visit   visitResponse   `json:"visit"`
	Visitor visitorResponse `json:"visitor"`
}

type blacklistAddRequest struct {
	VisitorID string  `json:"visitor_id,omitempty"`
	Phone     string  `json:"phone,omitempty"`
	Name      string  `json:"name,omitempty"`
	Reason    *string `json:"reason,omitempty"`
}

type statsResponse struct {
	VisitorsToday    int `json:"visitors_today"`
	PendingApprovals int `json:"pending_approvals"`
	CheckedIn        int `json:"checked_in"`
}

type visitResponse struct {
	ID              string     `json:"id"`
	VisitorID       string     `json:"visitor_id"`
	HostID          string     `json:"host_id"`
	Status          string     `json:"status"`
	Purpose         *string    `json:"purpose,omitempty"`
	ExpectedArrival *time.Time `json:"expected_arrival,omitempty"`
	ActualArrival   *time.Time `json:"actual_arrival,omitempty"`
	ActualDeparture *time.Time `json:"actual_departure,omitempty"`
	ConsentGiven    bool       `json:"consent_given"`
	WalkIn          bool       `json:"walk_in"`
	CreatedAt       time.Time  `json:"created_at"`
}

type visitorResponse struct {
	ID       string  `json:"id"`
	Phone    string  `json:"phone"`
	FullName string  `json:"full_name"`
	Email    *string `json:"email,omitempty"`
}

func toVisitResponse(v visit.Visit) visitResponse {
	return visitResponse{
		ID:              v.ID,
		VisitorID:       v.VisitorID,
		HostID:          v.HostID,
		Status:          string(v.Status),
		Purpose:         v.Purpose,
		ExpectedArrival: v.ExpectedArrival,
		ActualArrival:   v.ActualArrival,
		ActualDeparture: v.ActualDeparture,
		ConsentGiven:    v.ConsentGiven,
		WalkIn:          v.WalkIn,
		CreatedAt:       v.CreatedAt,
	}
}

func toVisitResponses(vs []visit.Visit) []visitResponse {
	out := make([]visitResponse, 0, len(vs))
	for _, v := range vs {
		out = append(out, toVisitResponse(v))
	}
	return out
}

func toVisitorResponse(v visitor.Visitor) visitorResponse {
	return visitorResponse{ID: v.ID, Phone: v.Phone, FullName: v.FullName, Email: v.Email}
}

type blacklistEntryResponse struct {
	ID        string    `json:"id"`
	VisitorID string    `json:"visitor_id"`
	Phone     string    `json:"phone"`
	Reason    *string   `json:"reason,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func toBlacklistResponses(es []blacklist.Entry) []blacklistEntryResponse {
	out := make([]blacklistEntryResponse, 0, len(es))
	for _, e := range es {
		out = append(out, blacklistEntryResponse{
			ID:        e.ID,
			VisitorID: e.VisitorID,
			Phone:     e.Phone,
			Reason:    e.Reason,
			CreatedBy: e.CreatedBy,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
