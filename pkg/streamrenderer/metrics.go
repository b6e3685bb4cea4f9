package streamrenderer

// The functions below forward events raised by the backend to the metrics callbacks
// the VMM passed to [Init]. Events are dropped when the renderer is not running or the
// matching callback was not supplied.

func currentMetrics() *metrics {
	r, err := get()
	if err != nil {
		return nil
	}
	return &r.metrics
}

func AddInstantEvent(eventCode int64) {
	if m := currentMetrics(); m != nil && m.addInstantEvent != nil {
		m.addInstantEvent(eventCode)
	}
}

func AddInstantEventWithDescriptor(eventCode, descriptor int64) {
	if m := currentMetrics(); m != nil && m.addInstantEventWithDescriptor != nil {
		m.addInstantEventWithDescriptor(eventCode, descriptor)
	}
}

func AddInstantEventWithMetric(eventCode, metricValue int64) {
	if m := currentMetrics(); m != nil && m.addInstantEventWithMetric != nil {
		m.addInstantEventWithMetric(eventCode, metricValue)
	}
}

// ReportVulkanOutOfMemory forwards a Vulkan allocation failure.
func ReportVulkanOutOfMemory(e VulkanOutOfMemoryEvent) {
	if m := currentMetrics(); m != nil && m.addVulkanOutOfMemoryEvent != nil {
		m.addVulkanOutOfMemoryEvent(e)
	}
}

// SetAnnotation attaches key and value to crash reports.
func SetAnnotation(key, value string) {
	if m := currentMetrics(); m != nil && m.setAnnotation != nil {
		m.setAnnotation(key, value)
	}
}
