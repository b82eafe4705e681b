package models

import (
	"log"

	"github.com/shoplytics/analytics_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Tenant{}, &Shop{}, &User{},
		&Customer{}, &Product{},
		&Order{}, &OrderLineItem{},
		&IngestionJob{},
		&CustomEvent{}, &WebhookEvent{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
