package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
	redisrepo "github.com/parkgate/parkgate/internal/repository/redis"
	"github.com/parkgate/parkgate/internal/service"
	"github.com/parkgate/parkgate/internal/service/admin"
	"github.com/parkgate/parkgate/internal/service/allocation"
	"github.com/parkgate/parkgate/internal/service/booking"
	"github.com/parkgate/parkgate/internal/service/query"
	"github.com/parkgate/parkgate/internal/service/wallet"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Gate API
	r.POST("/sessions/entry", handleEntry(svcs, idem))
	r.POST("/sessions/exit", handleExit(svcs))
	r.GET("/sessions", handleListSessions(svcs))
	r.GET("/sessions/:id", handleGetSession(svcs))

	// Facilities (read side)
	r.GET("/facilities", handleListFacilities(svcs))
	r.GET("/facilities/:id", handleGetFacility(svcs))
	r.GET("/facilities/:id/occupancy", handleOccupancy(svcs))
	r.GET("/facilities/:id/spots", handleListSpots(svcs))

	// Reservations
	r.POST("/reservations", handleCreateReservation(svcs))
	r.GET("/reservations", handleListReservations(svcs))
	r.GET("/reservations/:id", handleGetReservation(svcs))
	r.POST("/reservations/:id/cancel", handleCancelReservation(svcs))

	// Wallets
	r.GET("/wallets/:account_id", handleGetWallet(svcs))
	r.POST("/wallets/:account_id/topup", handleTopUp(svcs))
	r.GET("/wallets/:account_id/payments", handleListPayments(svcs))

	// Admin API
	// TODO: add operator auth middleware once the auth service lands
	adm := r.Group("/admin")
	{
		adm.POST("/facilities", handleCreateFacility(svcs))
		adm.PUT("/facilities/:id", handleUpdateFacility(svcs))
		adm.POST("/facilities/:id/spots", handleInitSpots(svcs))
		adm.PATCH("/facilities/:id/spots/:spot_id", handleUpdateSpot(svcs))
		adm.POST("/vehicles", handleRegisterVehicle(svcs))
		adm.GET("/vehicles", handleListVehicles(svcs))
		adm.POST("/subscriptions", handlePurchaseSubscription(svcs))
		adm.POST("/detections", handleRecordDetection(svcs))
		adm.GET("/detections", handleListDetections(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Vehicle entry (idempotent)
// @Param    req body  EntryRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} EntryResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "already parked / lot full"
// @Router   /sessions/entry [post]
func handleEntry(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemEntry(req.FacilityID, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		res, err := svcs.Allocation.OpenSession(c.Request.Context(), allocation.EntryInput{
			FacilityID:   req.FacilityID,
			Plate:        req.Plate,
			SpotClass:    domain.SpotClass(req.SpotClass),
			CheckInToken: req.CheckInToken,
			Method:       req.Method,
		})
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := EntryResponse{
			SessionID:    res.Session.ID,
			SpotID:       res.Spot.ID,
			SpotName:     res.Spot.Name,
			SessionType:  string(res.Session.Type),
			GateAction:   string(res.GateAction),
			IsRegistered: res.IsRegistered,
			EntryTime:    res.Session.EntryTime.Format(time.RFC3339),
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Vehicle exit
// @Param    req body  ExitRequest true "payload"
// @Success  200 {object} ExitResponse
// @Failure  404 {object} ErrorResponse "no open session"
// @Router   /sessions/exit [post]
func handleExit(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ExitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Allocation.CloseSession(c.Request.Context(), allocation.ExitInput{
			Plate:  req.Plate,
			Method: req.Method,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		resp := ExitResponse{
			SessionID:     res.Session.ID,
			SpotName:      res.Session.SpotName,
			DurationMin:   res.Session.DurationMin,
			Fee:           res.Session.Fee,
			PaymentStatus: string(res.Session.PaymentStatus),
			GateAction:    string(res.GateAction),
		}
		if res.Charged {
			resp.NewBalance = res.NewBalance
		}

		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  List sessions
// @Param    facility_id query int false "facility"
// @Param    plate query string false "plate"
// @Param    open query bool false "only open sessions"
// @Param    limit query int false "page size"
// @Success  200 {array} domain.Session
// @Router   /sessions [get]
func handleListSessions(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := repository.SessionFilter{
			FacilityID: parseInt64Default(c.Query("facility_id"), 0),
			Plate:      domain.NormalizePlate(c.Query("plate")),
			OpenOnly:   c.Query("open") == "true",
			Limit:      parseIntDefault(c.Query("limit"), 0),
		}

		out, err := svcs.Query.Sessions(c.Request.Context(), f)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Get session
// @Param    id path int true "Session ID"
// @Success  200 {object} domain.Session
// @Failure  404 {object} ErrorResponse
// @Router   /sessions/{id} [get]
func handleGetSession(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		out, err := svcs.Query.Session(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, out)
	}
}

// @Summary  List facilities
// @Success  200 {array} domain.Facility
// @Router   /facilities [get]
func handleListFacilities(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Query.Facilities(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=60", true)
	}
}

// @Summary  Get facility
// @Param    id path int true "Facility ID"
// @Success  200 {object} domain.Facility
// @Failure  404 {object} ErrorResponse
// @Router   /facilities/{id} [get]
func handleGetFacility(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		out, err := svcs.Query.Facility(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=60", true)
	}
}

// @Summary  Live occupancy counters
// @Param    id path int true "Facility ID"
// @Success  200 {object} domain.Occupancy
// @Router   /facilities/{id}/occupancy [get]
func handleOccupancy(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		out, err := svcs.Query.Occupancy(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=15", true)
	}
}

// @Summary  Spot map
// @Param    id path int true "Facility ID"
// @Success  200 {array} domain.Spot
// @Router   /facilities/{id}/spots [get]
func handleListSpots(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		out, err := svcs.Query.Spots(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=15", true)
	}
}

// @Summary  Create reservation
// @Param    req body  CreateReservationRequest true "payload"
// @Success  201 {object} ReservationResponse
// @Failure  400 {object} ErrorResponse "bad window"
// @Failure  402 {object} ErrorResponse "insufficient funds"
// @Failure  409 {object} ErrorResponse "class sold out"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /reservations [post]
func handleCreateReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateReservationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		start, err := parseRFC3339(req.Start)
		if err != nil {
			badRequest(c, "invalid start (RFC3339)")
			return
		}
		end, err := parseRFC3339(req.End)
		if err != nil {
			badRequest(c, "invalid end (RFC3339)")
			return
		}

		resv, err := svcs.Booking.Create(c.Request.Context(), booking.CreateInput{
			VehicleID:    req.VehicleID,
			FacilityID:   req.FacilityID,
			SpotClass:    domain.SpotClass(req.SpotClass),
			Start:        start,
			End:          end,
			RateLimitKey: "ip:" + c.ClientIP(),
		})
		if err != nil {
			if errors.Is(err, booking.ErrRateLimited) {
				c.Header("Retry-After", "60")
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
				return
			}
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, toReservationResponse(resv, true))
	}
}

// @Summary  List reservations
// @Param    facility_id query int false "facility"
// @Param    vehicle_id query int false "vehicle"
// @Param    status query string false "status"
// @Success  200 {array} domain.Reservation
// @Router   /reservations [get]
func handleListReservations(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := repository.ReservationFilter{
			FacilityID: parseInt64Default(c.Query("facility_id"), 0),
			VehicleID:  parseInt64Default(c.Query("vehicle_id"), 0),
			Status:     domain.ReservationStatus(c.Query("status")),
			Limit:      parseIntDefault(c.Query("limit"), 0),
		}

		out, err := svcs.Query.Reservations(c.Request.Context(), f)
		if err != nil {
			respondErr(c, err)
			return
		}

		resp := make([]ReservationResponse, 0, len(out))
		for i := range out {
			resp = append(resp, toReservationResponse(&out[i], false))
		}

		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  Get reservation
// @Param    id path int true "Reservation ID"
// @Success  200 {object} ReservationResponse
// @Failure  404 {object} ErrorResponse
// @Router   /reservations/{id} [get]
func handleGetReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		resv, err := svcs.Booking.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toReservationResponse(resv, false))
	}
}

// @Summary  Cancel reservation
// @Param    id path int true "Reservation ID"
// @Success  200 {object} ReservationResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "not cancellable"
// @Router   /reservations/{id}/cancel [post]
func handleCancelReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		resv, err := svcs.Booking.Cancel(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toReservationResponse(resv, false))
	}
}

// @Summary  Get wallet
// @Param    account_id path int true "Account ID"
// @Success  200 {object} WalletResponse
// @Failure  404 {object} ErrorResponse
// @Router   /wallets/{account_id} [get]
func handleGetWallet(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := parseInt64Param(c, "account_id")
		if !ok {
			return
		}

		w, err := svcs.Wallet.Balance(c.Request.Context(), accountID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, WalletResponse{
			AccountID: w.AccountID,
			Balance:   w.Balance,
			Currency:  w.Currency,
		})
	}
}

// @Summary  Top up wallet
// @Param    account_id path int true "Account ID"
// @Param    req body  TopUpRequest true "payload"
// @Success  200 {object} WalletResponse
// @Router   /wallets/{account_id}/topup [post]
func handleTopUp(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := parseInt64Param(c, "account_id")
		if !ok {
			return
		}

		var req TopUpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		balance, err := svcs.Wallet.TopUp(c.Request.Context(), accountID, req.Amount)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, WalletResponse{AccountID: accountID, Balance: balance})
	}
}

// @Summary  Payment history
// @Param    account_id path int true "Account ID"
// @Param    limit query int false "page size"
// @Success  200 {array} domain.Payment
// @Router   /wallets/{account_id}/payments [get]
func handleListPayments(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := parseInt64Param(c, "account_id")
		if !ok {
			return
		}

		out, err := svcs.Wallet.History(
			c.Request.Context(),
			accountID,
			parseIntDefault(c.Query("limit"), 0),
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Create facility
// @Param    req body  FacilityRequest true "payload"
// @Success  201 {object} domain.Facility
// @Router   /admin/facilities [post]
func handleCreateFacility(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FacilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		f, err := svcs.Admin.CreateFacility(c.Request.Context(), &domain.Facility{
			Name:            req.Name,
			Address:         req.Address,
			City:            req.City,
			HourlyRate:      req.HourlyRate,
			ReservationRate: req.ReservationRate,
			OpensAt:         req.OpensAt,
			ClosesAt:        req.ClosesAt,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, f)
	}
}

// @Summary  Update facility
// @Param    id path int true "Facility ID"
// @Param    req body  FacilityRequest true "payload"
// @Success  200 {object} domain.Facility
// @Router   /admin/facilities/{id} [put]
func handleUpdateFacility(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req FacilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		f := domain.Facility{
			ID:              id,
			Name:            req.Name,
			Address:         req.Address,
			City:            req.City,
			HourlyRate:      req.HourlyRate,
			ReservationRate: req.ReservationRate,
			OpensAt:         req.OpensAt,
			ClosesAt:        req.ClosesAt,
			Active:          true,
		}
		if req.Active != nil {
			f.Active = *req.Active
		}

		if err := svcs.Admin.UpdateFacility(c.Request.Context(), &f); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, f)
	}
}

// @Summary  Seed facility spots
// @Param    id path int true "Facility ID"
// @Param    req body  InitSpotsRequest true "payload"
// @Success  201 {object} map[string]int
// @Failure  409 {object} ErrorResponse "already seeded"
// @Router   /admin/facilities/{id}/spots [post]
func handleInitSpots(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req InitSpotsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		n, err := svcs.Admin.InitSpots(
			c.Request.Context(),
			id,
			req.Count,
			req.Prefix,
			domain.SpotClass(req.Class),
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"created": n})
	}
}

// @Summary  Update spot
// @Param    id path int true "Facility ID"
// @Param    spot_id path int true "Spot ID"
// @Param    req body  UpdateSpotRequest true "payload"
// @Success  204
// @Router   /admin/facilities/{id}/spots/{spot_id} [patch]
func handleUpdateSpot(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		facilityID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		spotID, ok := parseInt64Param(c, "spot_id")
		if !ok {
			return
		}

		var req UpdateSpotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		var class *domain.SpotClass
		if req.Class != nil {
			sc := domain.SpotClass(*req.Class)
			class = &sc
		}

		if err := svcs.Admin.UpdateSpot(
			c.Request.Context(),
			facilityID,
			spotID,
			class,
			req.Active,
		); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary  Register vehicle
// @Param    req body  RegisterVehicleRequest true "payload"
// @Success  201 {object} domain.Vehicle
// @Failure  409 {object} ErrorResponse "plate taken"
// @Router   /admin/vehicles [post]
func handleRegisterVehicle(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterVehicleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		v, err := svcs.Admin.RegisterVehicle(c.Request.Context(), &domain.Vehicle{
			AccountID: req.AccountID,
			Plate:     req.Plate,
			Make:      req.Make,
			Model:     req.Model,
			Type:      req.Type,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, v)
	}
}

// @Summary  List vehicles
// @Param    account_id query int false "account"
// @Success  200 {array} domain.Vehicle
// @Router   /admin/vehicles [get]
func handleListVehicles(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Admin.ListVehicles(
			c.Request.Context(),
			parseInt64Default(c.Query("account_id"), 0),
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Sell subscription
// @Param    req body  PurchaseSubscriptionRequest true "payload"
// @Success  201 {object} domain.Subscription
// @Failure  402 {object} ErrorResponse "insufficient funds"
// @Router   /admin/subscriptions [post]
func handlePurchaseSubscription(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PurchaseSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		sub, err := svcs.Admin.PurchaseSubscription(c.Request.Context(), admin.PurchaseInput{
			VehicleID:  req.VehicleID,
			FacilityID: req.FacilityID,
			Plan:       req.Plan,
			Months:     req.Months,
			Price:      req.Price,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, sub)
	}
}

// @Summary  Record plate detection
// @Param    req body  DetectionRequest true "payload"
// @Success  201 {object} domain.Detection
// @Router   /admin/detections [post]
func handleRecordDetection(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DetectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		d := domain.Detection{
			CameraID:   req.CameraID,
			FacilityID: req.FacilityID,
			Plate:      req.Plate,
			Confidence: req.Confidence,
		}
		if req.DetectedAt != "" {
			at, err := parseRFC3339(req.DetectedAt)
			if err != nil {
				badRequest(c, "invalid detected_at (RFC3339)")
				return
			}
			d.DetectedAt = at
		}

		out, err := svcs.Admin.RecordDetection(c.Request.Context(), &d)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, out)
	}
}

// @Summary  List detections
// @Param    facility_id query int false "facility"
// @Param    limit query int false "page size"
// @Success  200 {array} domain.Detection
// @Router   /admin/detections [get]
func handleListDetections(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Admin.Detections(
			c.Request.Context(),
			parseInt64Default(c.Query("facility_id"), 0),
			parseIntDefault(c.Query("limit"), 0),
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, out)
	}
}

// --- Helpers ---

func toReservationResponse(r *domain.Reservation, includeToken bool) ReservationResponse {
	resp := ReservationResponse{
		ID:            r.ID,
		SpotName:      r.SpotName,
		SpotClass:     string(r.SpotClass),
		Start:         r.Start.Format(time.RFC3339),
		End:           r.End.Format(time.RFC3339),
		Status:        string(r.Status),
		Fee:           r.Fee,
		PaymentStatus: string(r.PaymentStatus),
	}
	if includeToken {
		resp.CheckInToken = r.Token
	}
	return resp
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func parseInt64Default(s string, def int64) int64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// allocation service
	case errors.Is(err, allocation.ErrInvalidPlate):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid plate"})
		return
	case errors.Is(err, allocation.ErrFacilityNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "facility not found"})
		return
	case errors.Is(err, allocation.ErrAlreadyParked):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "vehicle already parked", GateAction: "deny"})
		return
	case errors.Is(err, allocation.ErrNoSpotAvailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "no spot available", GateAction: "deny"})
		return
	case errors.Is(err, allocation.ErrNoActiveSession):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no open session for plate"})
		return
	case errors.Is(err, allocation.ErrInvalidCheckInToken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "invalid check-in token"})
		return
	// booking service
	case errors.Is(err, booking.ErrInvalidWindow):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid reservation window"})
		return
	case errors.Is(err, booking.ErrVehicleNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "vehicle not found"})
		return
	case errors.Is(err, booking.ErrFacilityNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "facility not found"})
		return
	case errors.Is(err, booking.ErrReservationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "reservation not found"})
		return
	case errors.Is(err, booking.ErrInvalidTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "reservation not cancellable"})
		return
	case errors.Is(err, booking.ErrNoSpotAvailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "spot class sold out"})
		return
	case errors.Is(err, booking.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{Error: "insufficient funds"})
		return
	// wallet service
	case errors.Is(err, wallet.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "amount must be positive"})
		return
	case errors.Is(err, wallet.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "wallet not found"})
		return
	// query service
	case errors.Is(err, query.ErrFacilityNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "facility not found"})
		return
	case errors.Is(err, query.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	// admin service
	case errors.Is(err, admin.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid input"})
		return
	case errors.Is(err, admin.ErrFacilityNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "facility not found"})
		return
	case errors.Is(err, admin.ErrVehicleNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "vehicle not found"})
		return
	case errors.Is(err, admin.ErrSpotNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "spot not found"})
		return
	case errors.Is(err, admin.ErrPlateTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "plate already registered"})
		return
	case errors.Is(err, admin.ErrSpotsAlreadyExist):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "facility already seeded"})
		return
	case errors.Is(err, admin.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{Error: "insufficient funds"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
