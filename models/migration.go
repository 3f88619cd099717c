package models

import (
	"log"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Wallet{}, &WalletTransaction{},
		&Receipt{}, &ProcessingJob{}, &CorrectionLog{},
		&Expense{},
		&FeatureUsage{}, &ProgressCounter{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
