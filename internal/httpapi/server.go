package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"

	"github.com/servineo/billing/internal/metrics"
	"github.com/servineo/billing/pkg/clicks"
	"github.com/servineo/billing/pkg/wallet"
)

const claimsContextKey = "auth_claims"

// SettingsStore is the policy surface exposed to admins.
type SettingsStore interface {
	MinimumWalletBalanceCents(ctx context.Context) (wallet.AmountCents, error)
	SetMinimumWalletBalanceCents(ctx context.Context, minimum wallet.AmountCents) error
}

// Dependencies bundles the services the façade fronts.
type Dependencies struct {
	Logger   *zap.Logger
	Wallet   *wallet.Service
	Clicks   *clicks.Service
	Settings SettingsStore
}

// Run boots the HTTP façade using the supplied configuration.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return err
	}

	router := NewRouter(cfg, deps, validator)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		deps.Logger.Info("billing api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			deps.Logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter assembles the gin engine with session validation, CORS,
// metrics, and every billing route.
func NewRouter(cfg Config, deps Dependencies, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestMetrics())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := &httpHandler{cfg: cfg, deps: deps}

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))

	api.GET("/wallet", handler.handleWallet)
	api.POST("/deposits", handler.handleBeginDeposit)
	api.POST("/deposits/:id/complete", handler.handleCompleteDeposit)
	api.POST("/clicks", handler.handleClick)
	api.GET("/clicks/stats", handler.handleClickStats)
	api.GET("/clicks/eligibility", handler.handleEligibility)

	admin := api.Group("/admin")
	admin.Use(handler.requireAdmin)
	admin.POST("/adjustments", handler.handleAdjustment)
	admin.PUT("/settings/minimum-balance", handler.handleMinimumBalance)

	return router
}

func requestMetrics() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(ctx.Request.Method, path, strconv.Itoa(ctx.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(ctx.Request.Method, path).Observe(time.Since(started).Seconds())
	}
}

type httpHandler struct {
	cfg  Config
	deps Dependencies
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	professionalID, ok := handler.professionalFromClaims(ctx)
	if !ok {
		return
	}
	history, err := handler.deps.Wallet.WalletWithTransactions(ctx.Request.Context(), professionalID, handler.cfg.HistoryLimit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, WalletEnvelope{Wallet: mapHistory(history)})
}

func (handler *httpHandler) handleBeginDeposit(ctx *gin.Context) {
	professionalID, ok := handler.professionalFromClaims(ctx)
	if !ok {
		return
	}
	var request DepositRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	pending, err := handler.deps.Wallet.BeginDeposit(ctx.Request.Context(), professionalID, wallet.AmountCents(request.AmountCents), request.CheckoutSessionID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := mapTransaction(pending)
	ctx.JSON(http.StatusCreated, DepositEnvelope{Status: string(wallet.DepositStatusPending), Transaction: &payload})
}

func (handler *httpHandler) handleCompleteDeposit(ctx *gin.Context) {
	if _, ok := handler.professionalFromClaims(ctx); !ok {
		return
	}
	result, err := handler.deps.Wallet.CompleteDeposit(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	envelope := DepositEnvelope{Status: string(result.Status)}
	if result.Transaction != nil {
		payload := mapTransaction(*result.Transaction)
		envelope.Transaction = &payload
	}
	if result.Status == wallet.DepositStatusCompleted && result.Transaction != nil {
		metrics.DepositsCompletedTotal.Inc()
		metrics.DepositAmountCents.Add(float64(result.Transaction.AmountCents.Int64()))
	}
	ctx.JSON(http.StatusOK, envelope)
}

func (handler *httpHandler) handleClick(ctx *gin.Context) {
	claims := handler.claims(ctx)
	if claims == nil {
		return
	}
	var request ClickRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	event, err := handler.deps.Clicks.RecordClickAndCharge(ctx.Request.Context(), clicks.ClickParams{
		OfferID:  request.OfferID,
		ClientID: claims.GetUserID(),
		Type:     clicks.ClickType(request.ClickType),
	})
	if err != nil {
		switch {
		case errors.Is(err, clicks.ErrDuplicateClick):
			metrics.ClicksRejectedTotal.WithLabelValues("duplicate").Inc()
		case errors.Is(err, wallet.ErrInsufficientBalance):
			metrics.ClicksRejectedTotal.WithLabelValues("insufficient_balance").Inc()
		}
		handler.respondError(ctx, err)
		return
	}
	metrics.ClicksBilledTotal.WithLabelValues(event.Type.String()).Inc()
	ctx.JSON(http.StatusCreated, mapClick(event))
}

func (handler *httpHandler) handleClickStats(ctx *gin.Context) {
	professionalID, ok := handler.professionalFromClaims(ctx)
	if !ok {
		return
	}
	days, _ := strconv.Atoi(ctx.Query("days"))
	stats, err := handler.deps.Clicks.ClickStats(ctx.Request.Context(), professionalID, days)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	histogram := make([]DayCountPayload, 0, len(stats.ClicksByDay))
	for _, bucket := range stats.ClicksByDay {
		histogram = append(histogram, DayCountPayload{Day: bucket.Day, Clicks: bucket.Clicks})
	}
	ctx.JSON(http.StatusOK, StatsEnvelope{
		TotalClicks:    stats.TotalClicks,
		TotalCostCents: stats.TotalCostCents.Int64(),
		ClicksByDay:    histogram,
	})
}

func (handler *httpHandler) handleEligibility(ctx *gin.Context) {
	professionalID, ok := handler.professionalFromClaims(ctx)
	if !ok {
		return
	}
	decision, err := handler.deps.Clicks.CanProcessClick(ctx.Request.Context(), professionalID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, EligibilityEnvelope{CanProcess: decision.CanProcess, Reason: decision.Reason})
}

func (handler *httpHandler) handleAdjustment(ctx *gin.Context) {
	claims := handler.claims(ctx)
	if claims == nil {
		return
	}
	var request AdjustmentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	professionalID, err := wallet.NewProfessionalID(request.ProfessionalID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	creditType := wallet.TransactionAdminAdjustment
	if request.Type != "" {
		parsed, err := wallet.ParseTransactionType(request.Type)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		creditType = parsed
	}
	recorded, err := handler.deps.Wallet.CreditWallet(ctx.Request.Context(), wallet.CreditParams{
		ProfessionalID: professionalID,
		AmountCents:    wallet.AmountCents(request.AmountCents),
		Type:           creditType,
		Description:    request.Description,
		AdminID:        claims.GetUserID(),
		AdminNote:      request.Note,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, mapTransaction(recorded))
}

func (handler *httpHandler) handleMinimumBalance(ctx *gin.Context) {
	var request MinimumBalanceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if request.MinimumCents < 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_minimum", "minimum must be non-negative"))
		return
	}
	if err := handler.deps.Settings.SetMinimumWalletBalanceCents(ctx.Request.Context(), wallet.AmountCents(request.MinimumCents)); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"minimum_cents": request.MinimumCents})
}

func (handler *httpHandler) requireAdmin(ctx *gin.Context) {
	claims := handler.claims(ctx)
	if claims == nil {
		return
	}
	for _, role := range claims.GetUserRoles() {
		if role == handler.cfg.AdminRole {
			ctx.Next()
			return
		}
	}
	ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "admin role required"))
}

func (handler *httpHandler) claims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	if claims == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
	}
	return claims
}

func (handler *httpHandler) professionalFromClaims(ctx *gin.Context) (wallet.ProfessionalID, bool) {
	claims := handler.claims(ctx)
	if claims == nil {
		return wallet.ProfessionalID{}, false
	}
	professionalID, err := wallet.NewProfessionalID(claims.GetUserID())
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing user id"))
		return wallet.ProfessionalID{}, false
	}
	return professionalID, true
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	var insufficient wallet.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		ctx.JSON(http.StatusPaymentRequired, errorResponse("insufficient_balance", insufficient.Error()))
	case errors.Is(err, clicks.ErrDuplicateClick):
		ctx.JSON(http.StatusConflict, errorResponse("duplicate_click", "click already billed for this offer and client"))
	case errors.Is(err, clicks.ErrOfferNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("offer_not_found", "offer does not exist"))
	case errors.Is(err, wallet.ErrUnknownTransaction):
		ctx.JSON(http.StatusNotFound, errorResponse("transaction_not_found", "transaction does not exist"))
	case isValidationError(err):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
	default:
		handler.deps.Logger.Error("billing request failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "request failed"))
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		wallet.ErrInvalidProfessionalID,
		wallet.ErrInvalidWalletID,
		wallet.ErrInvalidTransactionID,
		wallet.ErrInvalidAmountCents,
		wallet.ErrInvalidTransactionType,
		wallet.ErrInvalidMetadataJSON,
		wallet.ErrInvalidCheckoutSession,
		clicks.ErrInvalidOfferID,
		clicks.ErrInvalidClientID,
		clicks.ErrInvalidClickType,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func errorResponse(code string, message string) ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorPayload{Code: code, Message: message}}
}

func mapHistory(history wallet.WalletHistory) WalletPayload {
	transactions := make([]TransactionPayload, 0, len(history.Transactions))
	for _, transaction := range history.Transactions {
		transactions = append(transactions, mapTransaction(transaction))
	}
	return WalletPayload{
		WalletID:       history.Wallet.WalletID,
		ProfessionalID: history.Wallet.ProfessionalID,
		BalanceCents:   history.Wallet.BalanceCents.Int64(),
		Transactions:   transactions,
	}
}

func mapTransaction(transaction wallet.Transaction) TransactionPayload {
	return TransactionPayload{
		TransactionID:      transaction.TransactionID,
		Type:               transaction.Type.String(),
		AmountCents:        transaction.AmountCents.Int64(),
		Description:        transaction.Description,
		BalanceBeforeCents: transaction.BalanceBeforeCents.Int64(),
		BalanceAfterCents:  transaction.BalanceAfterCents.Int64(),
		ReferenceID:        transaction.ReferenceID,
		Pending:            transaction.Pending,
		CreatedUnixUTC:     transaction.CreatedUnixUTC,
	}
}

func mapClick(event clicks.ClickEvent) ClickEnvelope {
	return ClickEnvelope{
		ClickID:        event.ClickID,
		OfferID:        event.OfferID,
		ClientID:       event.ClientID,
		ProfessionalID: event.ProfessionalID,
		Type:           event.Type.String(),
		CreatedUnixUTC: event.CreatedUnixUTC,
	}
}
