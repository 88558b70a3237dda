package entity

import "time"

type ScheduledMessage struct {
	ID             string     `json:"id" db:"id"`
	UserID         string     `json:"userId" db:"user_id"`
	RecipientEmail string     `json:"recipientEmail" db:"recipient_email"`
	Subject        string     `json:"subject" db:"subject"`
	Message        string     `json:"message" db:"message"`
	DeliveryDate   time.Time  `json:"deliveryDate" db:"delivery_date"`
	Delivered      bool       `json:"delivered" db:"delivered"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty" db:"delivered_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}

// DueMessage is a message picked up by the delivery sweep.
type DueMessage struct {
	ScheduledMessage
	SenderName string `db:"sender_name"`
}

type CreateScheduledMessageInput struct {
	RecipientEmail string
	Subject        string
	Message        string
	DeliveryDate   *time.Time
}
