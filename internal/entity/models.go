package entity

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&Role{},
		&User{},
		&Profile{},
		&Comment{},
		&Attachment{},
		&Notification{},
		&ReadReceipt{},
	}
}
