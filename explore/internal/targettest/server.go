package targettest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Options adjusts the fake target's behavior.
type Options struct {
	// SlowDelay is how long purchases take in slow mode.
	SlowDelay time.Duration
	// StateStatus, when non-zero, makes GET /state answer with this status
	// and no state object.
	StateStatus int
}

// DefaultOptions mirrors the demo store: 250ms purchases in slow mode.
func DefaultOptions() Options {
	return Options{SlowDelay: 250 * time.Millisecond}
}

// Server is a running fake target.
type Server struct {
	*httptest.Server
	Store *Store

	requests atomic.Int64
}

// Requests returns how many requests the server has handled.
func (s *Server) Requests() int64 { return s.requests.Load() }

// NewServer starts a fake target with a fresh store. The caller must Close it.
func NewServer(opts Options) *Server {
	gin.SetMode(gin.TestMode)
	srv := &Server{Store: NewStore()}
	srv.Server = httptest.NewServer(NewRouter(srv.Store, opts, &srv.requests))
	return srv
}

// NewRouter builds the gin engine serving store. counter may be nil.
func NewRouter(store *Store, opts Options, counter *atomic.Int64) *gin.Engine {
	r := gin.New()
	if counter != nil {
		r.Use(func(c *gin.Context) {
			counter.Add(1)
			c.Next()
		})
	}

	r.POST("/reset", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"state": store.Reset()})
	})

	r.GET("/state", func(c *gin.Context) {
		if opts.StateStatus != 0 {
			c.JSON(opts.StateStatus, gin.H{"error": "state unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": store.Summary()})
	})

	r.GET("/inventory", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"state": store.Summary()})
	})

	r.POST("/inventory", func(c *gin.Context) {
		item, qty, ok := itemAndQuantity(c)
		if !ok {
			return
		}
		if qty == 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "quantity must not be zero"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"state": store.AddInventory(item, qty)})
	})

	r.POST("/purchase", func(c *gin.Context) {
		var payload map[string]any
		_ = c.ShouldBindJSON(&payload)
		item, qty, ok := parseItemAndQuantity(c, payload)
		if !ok {
			return
		}
		expedite, _ := payload["expedite"].(bool)

		if store.Mode() == "slow" && opts.SlowDelay > 0 {
			time.Sleep(opts.SlowDelay)
		}
		if qty <= 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "quantity must be positive"})
			return
		}
		summary, err := store.Purchase(item, qty, expedite)
		switch {
		case errors.Is(err, errMaintenance), errors.Is(err, errInsufficient):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": store.Summary()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusCreated, gin.H{"state": summary})
		}
	})

	r.POST("/mode", func(c *gin.Context) {
		var payload map[string]any
		_ = c.ShouldBindJSON(&payload)
		mode, _ := payload["mode"].(string)
		if mode == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mode required"})
			return
		}
		summary, err := store.SetMode(mode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be one of normal|maintenance|slow"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": summary})
	})

	// Endpoints outside the demo store, for adapter edge cases.
	r.GET("/text", func(c *gin.Context) {
		c.String(http.StatusOK, "plain text body")
	})
	r.POST("/crash", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
	})
	r.POST("/redirect", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/state")
	})

	return r
}

func itemAndQuantity(c *gin.Context) (string, int, bool) {
	var payload map[string]any
	_ = c.ShouldBindJSON(&payload)
	return parseItemAndQuantity(c, payload)
}

// parseItemAndQuantity writes a 400 response and returns ok=false when item
// or quantity is missing or quantity is not a number.
func parseItemAndQuantity(c *gin.Context, payload map[string]any) (string, int, bool) {
	item, hasItem := payload["item"].(string)
	rawQty, hasQty := payload["quantity"]
	if !hasItem || !hasQty || rawQty == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item and quantity required"})
		return "", 0, false
	}
	qty, isNum := rawQty.(float64)
	if !isNum {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be integer"})
		return "", 0, false
	}
	return item, int(qty), true
}
