package db

import (
	"time"

	"github.com/lalithlochan/bloodlink/internal/geo"
	"github.com/lalithlochan/bloodlink/internal/lifecycle"
)

// User types
const (
	UserTypeDonor     = "Donor"
	UserTypeRecipient = "Recipient"
	UserTypeProvider  = "Healthcare Provider"
	UserTypeAdmin     = "Admin"
)

// BloodTypes lists the accepted ABO/Rh values. "N/A" is allowed for non-donors.
var BloodTypes = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

func ValidBloodType(bt string) bool {
	for _, v := range BloodTypes {
		if v == bt {
			return true
		}
	}
	return false
}

// Notification types
const (
	NotificationBloodRequest  = "Blood Request"
	NotificationOfferResponse = "Offer Response"
	NotificationReminder      = "Reminder"
)

// User is a directory entry. Users are never hard-deleted.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Fullname     string    `db:"fullname" json:"fullname"`
	Email        string    `db:"email" json:"email"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	Usertype     string    `db:"usertype" json:"usertype"`
	Bloodtype    string    `db:"bloodtype" json:"bloodtype"`
	Location     string    `db:"location" json:"location"`
	Latitude     *float64  `db:"latitude" json:"latitude"`
	Longitude    *float64  `db:"longitude" json:"longitude"`
	Availability bool      `db:"availability" json:"availability"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Point returns the user's geocode, or false when it is missing.
func (u *User) Point() (geo.Point, bool) {
	if u.Latitude == nil || u.Longitude == nil {
		return geo.Point{}, false
	}
	return geo.Point{Latitude: *u.Latitude, Longitude: *u.Longitude}, true
}

// NewUser is a directory entry about to be created. PasswordHash is a bcrypt hash.
type NewUser struct {
	Fullname     string
	Username     string
	PasswordHash string
	Email        string
	Phone        *string
	Usertype     string
	Bloodtype    string
	Location     string
	Latitude     float64
	Longitude    float64
}

// Credentials is a user together with their stored password hash.
type Credentials struct {
	User
	PasswordHash string `db:"password" json:"-"`
}

// UserUpdate holds the profile fields a user may change; nil fields are left as is.
type UserUpdate struct {
	Fullname     *string
	Phone        *string
	Availability *bool
	Location     *string
	Latitude     *float64
	Longitude    *float64
}

func (u UserUpdate) Empty() bool {
	return u.Fullname == nil && u.Phone == nil && u.Availability == nil && u.Location == nil
}

// BloodRequest is owned by its recipient. Status only moves through lifecycle transitions.
type BloodRequest struct {
	ID           int64            `db:"id" json:"id"`
	RecipientID  int64            `db:"recipient_id" json:"recipient_id"`
	BloodType    string           `db:"blood_type" json:"blood_type"`
	UrgencyLevel string           `db:"urgency_level" json:"urgency_level"`
	Units        int              `db:"units" json:"units"`
	Location     string           `db:"location" json:"location"`
	ContactInfo  string           `db:"contact_info" json:"contact_info"`
	DateNeeded   time.Time        `db:"date_needed" json:"date_needed"`
	Latitude     float64          `db:"latitude" json:"latitude"`
	Longitude    float64          `db:"longitude" json:"longitude"`
	Status       lifecycle.Status `db:"status" json:"status"`
	RequestedAt  time.Time        `db:"requested_at" json:"requested_at"`
	MatchedAt    *time.Time       `db:"matched_at" json:"matched_at"`
	CompletedAt  *time.Time       `db:"completed_at" json:"completed_at"`
}

func (r *BloodRequest) Point() geo.Point {
	return geo.Point{Latitude: r.Latitude, Longitude: r.Longitude}
}

// RequestWithRecipient is a request joined with its owner's name.
type RequestWithRecipient struct {
	BloodRequest
	RecipientName string `db:"recipient_name" json:"recipient_name"`
}

// Offer is one donor x request proposal. Unique per (donor, request).
type Offer struct {
	ID           int64              `db:"id" json:"id"`
	DonorID      int64              `db:"donor_id" json:"donor_id"`
	RequestID    int64              `db:"blood_request_id" json:"request_id"`
	Response     lifecycle.Response `db:"response" json:"response"`
	HospitalName string             `db:"hospital_name" json:"hospital_name"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
}

// DonorInboxItem is an offer as seen by the donor it was sent to.
type DonorInboxItem struct {
	OfferID       int64              `db:"offer_id" json:"offer_id"`
	RequestID     int64              `db:"request_id" json:"request_id"`
	Response      lifecycle.Response `db:"response" json:"response"`
	HospitalName  string             `db:"hospital_name" json:"hospital_name"`
	SentAt        time.Time          `db:"sent_at" json:"sent_at"`
	BloodType     string             `db:"blood_type" json:"blood_type"`
	UrgencyLevel  string             `db:"urgency_level" json:"urgency_level"`
	Units         int                `db:"units" json:"units"`
	Location      string             `db:"location" json:"location"`
	DateNeeded    time.Time          `db:"date_needed" json:"date_needed"`
	ContactInfo   string             `db:"contact_info" json:"contact_info"`
	RequestStatus lifecycle.Status   `db:"request_status" json:"request_status"`
	RecipientName string             `db:"recipient_name" json:"recipient_name"`
}

// DonorMatch is the donor's currently accepted, matched request.
type DonorMatch struct {
	RequestID  int64     `db:"request_id" json:"request_id"`
	Location   string    `db:"location" json:"location"`
	DateNeeded time.Time `db:"date_needed" json:"date_needed"`
}

// Notification is a user-visible message. Messages may be amended, never deleted.
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Message   string    `db:"message" json:"message"`
	RequestID *int64    `db:"request_id" json:"request_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Constituency struct {
	ID        int64   `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	Latitude  float64 `db:"latitude" json:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude"`
}

func (c *Constituency) Centroid() geo.Point {
	return geo.Point{Latitude: c.Latitude, Longitude: c.Longitude}
}

type Hospital struct {
	ID           int64   `db:"id" json:"id"`
	Name         string  `db:"name" json:"name"`
	Constituency string  `db:"constituency" json:"constituency"`
	Latitude     float64 `db:"latitude" json:"latitude"`
	Longitude    float64 `db:"longitude" json:"longitude"`
}

func (h *Hospital) Point() geo.Point {
	return geo.Point{Latitude: h.Latitude, Longitude: h.Longitude}
}

// AppointmentStatus is the closed set of appointment states.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

func ParseAppointmentStatus(s string) (AppointmentStatus, bool) {
	switch st := AppointmentStatus(s); st {
	case AppointmentScheduled, AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled:
		return st, true
	default:
		return "", false
	}
}

type Appointment struct {
	ID         int64             `db:"id" json:"id"`
	UserID     int64             `db:"user_id" json:"user_id"`
	Date       time.Time         `db:"date" json:"date"`
	Location   string            `db:"location" json:"location"`
	Status     AppointmentStatus `db:"status" json:"status"`
	Units      int               `db:"units" json:"units"`
	RemindedAt *time.Time        `db:"reminded_at" json:"reminded_at,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}

// AppointmentView joins an appointment with its donor for provider listings.
type AppointmentView struct {
	Appointment
	DonorName string `db:"donor_name" json:"donor_name"`
	Bloodtype string `db:"bloodtype" json:"bloodtype"`
}
