package streamrenderer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/features"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
)

// ParamKey identifies an init parameter. The values are fixed by the VMM contract.
type ParamKey uint64

const (
	ParamNull                  ParamKey = 0
	ParamUserData              ParamKey = 1
	ParamRendererFlags         ParamKey = 2
	ParamFenceCallback         ParamKey = 3
	ParamWin0Width             ParamKey = 4
	ParamWin0Height            ParamKey = 5
	ParamDebugCallback         ParamKey = 6
	ParamSkipOpenGLESInit      ParamKey = 7
	ParamHostVisibleMemoryMask ParamKey = 8
	ParamRenderingGPU          ParamKey = 9
	ParamRendererFeatures      ParamKey = 11

	ParamMetricsAddInstantEvent               ParamKey = 1024
	ParamMetricsAddInstantEventWithDescriptor ParamKey = 1025
	ParamMetricsAddInstantEventWithMetric     ParamKey = 1026
	ParamMetricsAddVulkanOutOfMemoryEvent     ParamKey = 1027
	ParamMetricsSetAnnotation                 ParamKey = 1028
	ParamMetricsAbort                         ParamKey = 1029
)

var paramNames = map[ParamKey]string{
	ParamNull:                  "NULL",
	ParamUserData:              "USER_DATA",
	ParamRendererFlags:         "RENDERER_FLAGS",
	ParamFenceCallback:         "FENCE_CALLBACK",
	ParamWin0Width:             "WIN0_WIDTH",
	ParamWin0Height:            "WIN0_HEIGHT",
	ParamDebugCallback:         "DEBUG_CALLBACK",
	ParamSkipOpenGLESInit:      "SKIP_OPENGLES_INIT",
	ParamHostVisibleMemoryMask: "HOST_VISIBLE_MEMORY_MASK",
	ParamRenderingGPU:          "RENDERING_GPU",
	ParamRendererFeatures:      "RENDERER_FEATURES",

	ParamMetricsAddInstantEvent:               "METRICS_CALLBACK_ADD_INSTANT_EVENT",
	ParamMetricsAddInstantEventWithDescriptor: "METRICS_CALLBACK_ADD_INSTANT_EVENT_WITH_DESCRIPTOR",
	ParamMetricsAddInstantEventWithMetric:     "METRICS_CALLBACK_ADD_INSTANT_EVENT_WITH_METRIC",
	ParamMetricsAddVulkanOutOfMemoryEvent:     "METRICS_CALLBACK_ADD_VULKAN_OUT_OF_MEMORY_EVENT",
	ParamMetricsSetAnnotation:                 "METRICS_CALLBACK_SET_ANNOTATION",
	ParamMetricsAbort:                         "METRICS_CALLBACK_ABORT",
}

func (k ParamKey) String() string {
	if s, ok := paramNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(%d)", uint64(k))
}

var requiredParams = []ParamKey{ParamUserData, ParamRendererFlags, ParamFenceCallback}

// Param is one init parameter. Value must have the type documented for its key.
type Param struct {
	Key   ParamKey
	Value any
}

// FenceCallback receives every signaled fence along with the USER_DATA cookie.
type FenceCallback func(cookie any, fence Fence)

// DebugCallback receives every log entry along with the USER_DATA cookie.
type DebugCallback func(cookie any, t log.DebugType, msg string)

// Metrics callbacks.
type (
	AddInstantEventCallback               func(eventCode int64)
	AddInstantEventWithDescriptorCallback func(eventCode, descriptor int64)
	AddInstantEventWithMetricCallback     func(eventCode, metricValue int64)
	AddVulkanOutOfMemoryEventCallback     func(e VulkanOutOfMemoryEvent)
	SetAnnotationCallback                 func(key, value string)
	AbortCallback                         func()
)

// VulkanOutOfMemoryEvent is reported through [AddVulkanOutOfMemoryEventCallback].
type VulkanOutOfMemoryEvent struct {
	ResultCode       int64
	OpCode           uint32
	Function         string
	Line             uint32
	AllocationSize   uint64
	IsHostSideResult bool
	IsAllocation     bool
}

// metrics holds the callbacks the VMM supplied for reporting events.
type metrics struct {
	addInstantEvent               AddInstantEventCallback
	addInstantEventWithDescriptor AddInstantEventWithDescriptorCallback
	addInstantEventWithMetric     AddInstantEventWithMetricCallback
	addVulkanOutOfMemoryEvent     AddVulkanOutOfMemoryEventCallback
	setAnnotation                 SetAnnotationCallback
	abort                         AbortCallback
}

// dieFunc returns the function [abort.Abort] calls, or nil when the VMM did not supply
// an abort callback. The abort reason is recorded as a crash annotation first.
func (m *metrics) dieFunc() func(msg string) {
	if m.abort == nil {
		return nil
	}
	return func(msg string) {
		if m.setAnnotation != nil {
			m.setAnnotation("gfxstream_abort_reason", msg)
		}
		m.abort()
	}
}

// initConfig is the result of reading the init parameters.
type initConfig struct {
	cookie           any
	flags            features.RendererFlags
	onFence          FenceCallback
	onDebug          DebugCallback
	width, height    uint32
	skipOpenGLESInit bool
	features         string
	metrics          metrics
}

// parseParams reads params into an initConfig. Unknown keys are returned so they can
// be reported once logging is set up.
func parseParams(params []Param) (*initConfig, []ParamKey, error) {
	cfg := &initConfig{}
	missing := make(map[ParamKey]struct{}, len(requiredParams))
	for _, k := range requiredParams {
		missing[k] = struct{}{}
	}

	var unknown []ParamKey
	for _, p := range params {
		delete(missing, p.Key)

		var err error
		switch p.Key {
		case ParamNull:
		case ParamUserData:
			cfg.cookie = p.Value
		case ParamRendererFlags:
			var v uint64
			v, err = paramUint(p)
			cfg.flags = features.RendererFlags(v)
		case ParamFenceCallback:
			cfg.onFence, err = paramFunc[FenceCallback](p)
		case ParamWin0Width:
			var v uint64
			v, err = paramUint(p)
			cfg.width = uint32(v)
		case ParamWin0Height:
			var v uint64
			v, err = paramUint(p)
			cfg.height = uint32(v)
		case ParamDebugCallback:
			cfg.onDebug, err = paramFunc[DebugCallback](p)
		case ParamSkipOpenGLESInit:
			cfg.skipOpenGLESInit, err = paramBool(p)
		case ParamRendererFeatures:
			s, ok := p.Value.(string)
			if !ok {
				err = paramTypeError(p)
			}
			cfg.features = s
		case ParamMetricsAddInstantEvent:
			cfg.metrics.addInstantEvent, err = paramFunc[AddInstantEventCallback](p)
		case ParamMetricsAddInstantEventWithDescriptor:
			cfg.metrics.addInstantEventWithDescriptor, err = paramFunc[AddInstantEventWithDescriptorCallback](p)
		case ParamMetricsAddInstantEventWithMetric:
			cfg.metrics.addInstantEventWithMetric, err = paramFunc[AddInstantEventWithMetricCallback](p)
		case ParamMetricsAddVulkanOutOfMemoryEvent:
			cfg.metrics.addVulkanOutOfMemoryEvent, err = paramFunc[AddVulkanOutOfMemoryEventCallback](p)
		case ParamMetricsSetAnnotation:
			cfg.metrics.setAnnotation, err = paramFunc[SetAnnotationCallback](p)
		case ParamMetricsAbort:
			cfg.metrics.abort, err = paramFunc[AbortCallback](p)
		default:
			unknown = append(unknown, p.Key)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	if len(missing) > 0 {
		var names []string
		for _, k := range requiredParams {
			if _, ok := missing[k]; ok {
				names = append(names, k.String())
			}
		}
		return nil, nil, errdefs.InvalidArgumentf("missing required parameters: %v", names)
	}
	return cfg, unknown, nil
}

// logParams reports what was read. Callback and cookie values are not printed.
func logParams(ctx context.Context, params []Param, unknown []ParamKey) {
	entry := log.G(ctx)
	for _, p := range params {
		switch p.Key {
		case ParamRendererFlags, ParamWin0Width, ParamWin0Height, ParamSkipOpenGLESInit, ParamRendererFeatures:
			entry.WithField(p.Key.String(), p.Value).Debug("renderer parameter")
		default:
			entry.WithField(p.Key.String(), true).Debug("renderer parameter")
		}
	}
	for _, k := range unknown {
		entry.WithFields(logrus.Fields{
			logfields.Key:    uint64(k),
			logfields.Reason: "may need to upgrade the renderer",
		}).Warning("skipping unknown parameter")
	}
}

func paramTypeError(p Param) error {
	return errdefs.InvalidArgumentf("parameter %s has unexpected type %T", p.Key, p.Value)
}

func paramUint(p Param) (uint64, error) {
	switch v := p.Value.(type) {
	case features.RendererFlags:
		return uint64(v), nil
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case uint:
		return uint64(v), nil
	case int:
		if v >= 0 {
			return uint64(v), nil
		}
	case int64:
		if v >= 0 {
			return uint64(v), nil
		}
	case int32:
		if v >= 0 {
			return uint64(v), nil
		}
	}
	return 0, paramTypeError(p)
}

func paramBool(p Param) (bool, error) {
	if b, ok := p.Value.(bool); ok {
		return b, nil
	}
	v, err := paramUint(p)
	return v != 0, err
}

// paramFunc expects the named callback type. A nil callback is treated as absent.
func paramFunc[F any](p Param) (F, error) {
	var zero F
	if p.Value == nil {
		return zero, nil
	}
	f, ok := p.Value.(F)
	if !ok {
		return zero, paramTypeError(p)
	}
	return f, nil
}
