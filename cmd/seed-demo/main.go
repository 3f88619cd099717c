// seed-demo creates or refreshes the local development account: a demo
// owner (username: demoOwner) plus a cash and a bank wallet with opening
// balances, and prints a bearer token for calling the API.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME_2=... go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/config"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/utils"
)

const (
	demoUsername = "demoOwner"
	demoPassword = "demo1234"
	demoBusiness = "demo-business"
)

func main() {
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	hashed, err := utils.HashPassword(demoPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var user models.User
	err = db.WithContext(ctx).Where("username = ?", demoUsername).Take(&user).Error
	switch {
	case err == nil:
		if err := db.WithContext(ctx).Model(&user).Updates(map[string]any{
			"password_hash": string(hashed),
			"business_id":   demoBusiness,
		}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to update demo user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated demo user: username=%q\n", demoUsername)
	case err == gorm.ErrRecordNotFound:
		user = models.User{
			BusinessId:   demoBusiness,
			Username:     demoUsername,
			PasswordHash: string(hashed),
			Role:         models.UserRoleOwner,
			Tier:         models.AccountTierFree,
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create demo user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created demo user: username=%q\n", demoUsername)
	default:
		fmt.Fprintf(os.Stderr, "failed to lookup demo user: %v\n", err)
		os.Exit(1)
	}

	wallets := models.NewWalletDB(db)
	seedWallets := []models.Wallet{
		{BusinessId: demoBusiness, Name: "Petty Cash", Type: models.WalletTypeCash, Balance: decimal.NewFromInt(500), IsActive: utils.NewTrue()},
		{BusinessId: demoBusiness, Name: "Maybank Current", Type: models.WalletTypeBank, Balance: decimal.NewFromInt(10000), IsActive: utils.NewTrue()},
	}
	for _, w := range seedWallets {
		var existing models.Wallet
		err := db.WithContext(ctx).Where("business_id = ? AND name = ?", w.BusinessId, w.Name).Take(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup wallet %q: %v\n", w.Name, err)
			os.Exit(1)
		}
		if err := wallets.Create(ctx, &w); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create wallet %q: %v\n", w.Name, err)
			os.Exit(1)
		}
		fmt.Printf("Created wallet: %s (%s)\n", w.Name, w.Type)
	}

	token, err := utils.JwtGenerate(user.ID, user.Role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Bearer token for %q:\n%s\n", demoUsername, token)
}
