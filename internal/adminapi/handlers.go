package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// cacheSnapshot is a display-friendly view of the cache's size;
// the cache does not expose individual entries since they carry no
// stable identifier useful to an admin caller beyond the count.
func (h *handler) cacheSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"size": h.deps.Cache.Len()})
}

func (h *handler) filterSnapshot(c *gin.Context) {
	f := h.deps.LiveFilter()
	if f == nil {
		c.JSON(http.StatusOK, gin.H{"loaded": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"loaded":         true,
		"representation": f.Representation().String(),
		"size":           f.Size(),
		"built_at":       f.BuiltAt(),
		"stats":          f.Stats.Snapshot(),
	})
}

func (h *handler) instrumentationSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"records": h.deps.Instrumented.Snapshot(),
	})
}

func (h *handler) getAllowlist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"allowlist": h.deps.Config.Allowlist()})
}

func (h *handler) getAutoUpdate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"auto_update": h.deps.Config.Snapshot().AutoUpdate})
}

func (h *handler) getOverrides(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"overrides": h.deps.Config.Overrides()})
}

type allowlistRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *handler) addAllowlist(c *gin.Context) {
	var req allowlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.deps.Config.AppendAllowlist(req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.deps.Cache.Remove(req.Name)
	c.JSON(http.StatusOK, gin.H{"allowlist": h.deps.Config.Allowlist()})
}

func (h *handler) removeAllowlist(c *gin.Context) {
	name := c.Param("name")
	if err := h.deps.Config.RemoveAllowlist(name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.deps.Cache.Remove(name)
	c.JSON(http.StatusOK, gin.H{"allowlist": h.deps.Config.Allowlist()})
}

type autoUpdateRequest struct {
	IntervalHours *float64 `json:"interval_hours"`
}

func (h *handler) setAutoUpdate(c *gin.Context) {
	var req autoUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.deps.Config.SetAutoUpdate(req.IntervalHours); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"auto_update": h.deps.Config.Snapshot().AutoUpdate})
}

type overrideRequest struct {
	Name    string  `json:"name" binding:"required"`
	Address [4]byte `json:"address" binding:"required"`
}

func (h *handler) setOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.deps.Config.SetOverride(req.Name, req.Address); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.deps.Cache.Remove(req.Name)
	c.JSON(http.StatusOK, gin.H{"overrides": h.deps.Config.Overrides()})
}

func (h *handler) removeOverride(c *gin.Context) {
	name := c.Param("name")
	if err := h.deps.Config.RemoveOverride(name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.deps.Cache.Remove(name)
	c.JSON(http.StatusOK, gin.H{"overrides": h.deps.Config.Overrides()})
}

// refreshFilter fires the non-blocking filter-refresh signal the
// pipeline's filter updater task waits on; it does not block for the
// reload to complete.
func (h *handler) refreshFilter(c *gin.Context) {
	h.deps.Pipeline.RefreshFilter()
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh signaled"})
}
