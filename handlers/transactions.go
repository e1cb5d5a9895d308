// handlers/transactions.go
package handlers

import (
	"pft-node-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTransactionRoutes(app *fiber.App, ingestService *services.IngestService, correlatorService *services.CorrelatorService, balanceService *services.BalanceService) {
	// Ingestion — the ledger client pushes raw transaction batches here.
	app.Post("/transactions", ingestService.IngestTransactions)

	// Processing queries — consumed by the rule engine and notifier.
	app.Get("/transactions/unprocessed", correlatorService.GetUnprocessed)
	app.Post("/transactions/reprocess", correlatorService.Reprocess)
	app.Get("/outcomes/notifications", correlatorService.GetNotifications)

	app.Get("/balances/:account", balanceService.GetBalanceByAccount)
}
