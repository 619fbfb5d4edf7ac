package paymentmethod

import "time"

type Type string

const (
	TypeGcash Type = "gcash"
	TypeBank  Type = "bank"
)

// PaymentMethod is a gateway token linked to a user. TokenID is unique.
type PaymentMethod struct {
	ID           string    `db:"id" json:"id" firestore:"id"`
	UserID       string    `db:"user_id" json:"user_id" firestore:"userId"`
	Type         Type      `db:"type" json:"type" firestore:"type"`
	TokenID      string    `db:"token_id" json:"token_id" firestore:"tokenId"`
	ChannelCode  string    `db:"channel_code" json:"channel_code" firestore:"channelCode"`
	AccountLabel string    `db:"account_label" json:"account_label" firestore:"accountLabel"`
	CreatedAt    time.Time `db:"created_at" json:"created_at" firestore:"createdAt"`
}
