package handlers

import (
	"net/http"
	"strings"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/dto"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/repository"
	"datalabel-backend/internal/services"
	"datalabel-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LedgerHandler payment history and wallet balances
type LedgerHandler struct {
	transactions repository.LedgerTransactionRepository
	settlement   *services.SettlementService
	logger       *logrus.Logger
}

func NewLedgerHandler(transactions repository.LedgerTransactionRepository, settlement *services.SettlementService, logger *logrus.Logger) *LedgerHandler {
	return &LedgerHandler{
		transactions: transactions,
		settlement:   settlement,
		logger:       logger,
	}
}

// ListTransactionsHandler caller's ledger transactions, newest first
// GET /api/transactions?type=&task_id=&limit=
func (h *LedgerHandler) ListTransactionsHandler(c *gin.Context) {
	limit, _ := pagination(c, 50, 200)
	filter := repository.TransactionFilter{
		Wallet: currentPrincipal(c).WalletAddress,
		Type:   models.LedgerTransactionType(strings.ToUpper(c.Query("type"))),
		TaskID: c.Query("task_id"),
		Limit:  limit,
	}
	if filter.Type != "" && !filter.Type.Valid() {
		respondWithError(c, http.StatusBadRequest, string(apperrors.KindValidation), "invalid type filter",
			map[string]string{"type": "unknown transaction type"})
		return
	}

	txs, err := h.transactions.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		respondWithAppError(c, h.logger, "list transactions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    dto.NewTransactionResponses(txs),
	})
}

// BalanceHandler GET /api/wallet/:address/balance
func (h *LedgerHandler) BalanceHandler(c *gin.Context) {
	address, err := utils.NormalizeWalletAddress(c.Param("address"))
	if err != nil {
		respondWithAppError(c, h.logger, "balance", apperrors.FieldError("address", err.Error()))
		return
	}
	lamports, err := h.settlement.Balance(c.Request.Context(), address)
	if err != nil {
		respondWithAppError(c, h.logger, "balance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": dto.BalanceResponse{
			Address:  address,
			Lamports: lamports,
			Balance:  utils.FromLamports(int64(lamports)).String(),
		},
	})
}
