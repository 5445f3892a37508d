package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/fdm-driver/internal/driver"
	"github.com/taoyao-code/fdm-driver/internal/registry"
)

// DeviceSource 本进程已识别的设备
type DeviceSource interface {
	Devices() []driver.DeviceInfo
}

// RegistrySource 在线登记（可能包含其他实例的设备）
type RegistrySource interface {
	List(ctx context.Context) ([]registry.Device, error)
}

// DeviceHandler 只读设备查询
type DeviceHandler struct {
	devices DeviceSource
	reg     RegistrySource
}

// DeviceRoutes 挂载 /api/v1 下的设备查询路由；reg 为 nil 时不挂载登记查询
func DeviceRoutes(devices DeviceSource, reg RegistrySource) Mount {
	h := &DeviceHandler{devices: devices, reg: reg}
	return func(r gin.IRouter) {
		g := r.Group("/api/v1")
		g.GET("/devices", h.ListDevices)
		if reg != nil {
			g.GET("/registry", h.ListRegistry)
		}
	}
}

// ListDevices 查询本进程已识别的 FDM
// @Summary 查询已识别设备
// @Description 返回本进程持有串口会话的 FDM 列表（按编号排序）
// @Tags 设备
// @Produce json
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	list := h.devices.Devices()
	c.JSON(http.StatusOK, gin.H{"count": len(list), "devices": list})
}

// ListRegistry 查询在线登记
// @Summary 查询在线登记
// @Description 返回登记表中的全部设备，Redis 后端下包含其他实例
// @Tags 设备
// @Produce json
// @Success 200 {object} map[string]interface{} "成功"
// @Failure 502 {object} map[string]interface{} "登记后端不可用"
// @Router /api/v1/registry [get]
func (h *DeviceHandler) ListRegistry(c *gin.Context) {
	list, err := h.reg.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "devices": list})
}
