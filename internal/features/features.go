// Package features holds the renderer feature set negotiated at init.
package features

import (
	"context"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
)

// RendererFlags are the renderer flag bits passed by the VMM at init.
type RendererFlags uint32

const (
	FlagUseEGL                RendererFlags = 1 << 0
	FlagThreadSync            RendererFlags = 1 << 1
	FlagUseGLX                RendererFlags = 1 << 2
	FlagUseSurfaceless        RendererFlags = 1 << 3
	FlagUseGLES               RendererFlags = 1 << 4
	FlagUseVK                 RendererFlags = 1 << 5
	FlagUseExternalBlob       RendererFlags = 1 << 6
	FlagUseSystemBlob         RendererFlags = 1 << 7
	FlagVulkanNativeSwapchain RendererFlags = 1 << 8
	FlagVulkanExternalSync    RendererFlags = 1 << 9
)

// Has reports whether every bit of f is set.
func (r RendererFlags) Has(f RendererFlags) bool {
	return r&f == f
}

// CaptureVulkanSnapshotsEnv enables the VulkanSnapshots feature when set to "1".
const CaptureVulkanSnapshotsEnv = "ANDROID_GFXSTREAM_CAPTURE_VK_SNAPSHOT"

const (
	reasonDefault  = "Default value"
	reasonFlags    = "Derived from renderer flags"
	reasonEnv      = "Derived from " + CaptureVulkanSnapshotsEnv
	reasonOverride = "Overridden via STREAM_RENDERER_PARAM_RENDERER_FEATURES"
)

// Feature is a single named toggle.
type Feature struct {
	Name    string
	Enabled bool
	Reason  string
}

// FeatureSet is every feature the frontend and backend consult.
type FeatureSet struct {
	ExternalBlob                     Feature
	GlAsyncSwap                      Feature
	GlDirectMem                      Feature
	GlDma                            Feature
	GlesDynamicVersion               Feature
	GlPipeChecksum                   Feature
	GuestVulkanOnly                  Feature
	HostComposition                  Feature
	NativeTextureDecompression       Feature
	NoDelayCloseColorBuffer          Feature
	PlayStoreImage                   Feature
	RefCountPipe                     Feature
	SystemBlob                       Feature
	VirtioGpuFenceContexts           Feature
	VirtioGpuNativeSync              Feature
	VirtioGpuNext                    Feature
	Vulkan                           Feature
	VulkanBatchedDescriptorSetUpdate Feature
	VulkanExternalSync               Feature
	VulkanIgnoredHandles             Feature
	VulkanNativeSwapchain            Feature
	VulkanNullOptionalStrings        Feature
	VulkanQueueSubmitWithCommands    Feature
	VulkanShaderFloat16Int8          Feature
	VulkanSnapshots                  Feature
}

func (fs *FeatureSet) all() []*Feature {
	return []*Feature{
		&fs.ExternalBlob,
		&fs.GlAsyncSwap,
		&fs.GlDirectMem,
		&fs.GlDma,
		&fs.GlesDynamicVersion,
		&fs.GlPipeChecksum,
		&fs.GuestVulkanOnly,
		&fs.HostComposition,
		&fs.NativeTextureDecompression,
		&fs.NoDelayCloseColorBuffer,
		&fs.PlayStoreImage,
		&fs.RefCountPipe,
		&fs.SystemBlob,
		&fs.VirtioGpuFenceContexts,
		&fs.VirtioGpuNativeSync,
		&fs.VirtioGpuNext,
		&fs.Vulkan,
		&fs.VulkanBatchedDescriptorSetUpdate,
		&fs.VulkanExternalSync,
		&fs.VulkanIgnoredHandles,
		&fs.VulkanNativeSwapchain,
		&fs.VulkanNullOptionalStrings,
		&fs.VulkanQueueSubmitWithCommands,
		&fs.VulkanShaderFloat16Int8,
		&fs.VulkanSnapshots,
	}
}

// List returns a copy of every feature in name order.
func (fs *FeatureSet) List() []Feature {
	return lo.Map(fs.all(), func(f *Feature, _ int) Feature { return *f })
}

// Lookup returns the feature called name.
func (fs *FeatureSet) Lookup(name string) (*Feature, bool) {
	return lo.Find(fs.all(), func(f *Feature) bool { return f.Name == name })
}

func set(f *Feature, name string, enabled bool, reason string) {
	*f = Feature{Name: name, Enabled: enabled, Reason: reason}
}

// Defaults derives the feature set from the renderer flags and the environment.
func Defaults(flags RendererFlags) FeatureSet {
	var fs FeatureSet
	set(&fs.ExternalBlob, "ExternalBlob", flags.Has(FlagUseExternalBlob), reasonFlags)
	set(&fs.GlAsyncSwap, "GlAsyncSwap", false, reasonDefault)
	set(&fs.GlDirectMem, "GlDirectMem", false, reasonDefault)
	set(&fs.GlDma, "GlDma", false, reasonDefault)
	set(&fs.GlesDynamicVersion, "GlesDynamicVersion", true, reasonDefault)
	set(&fs.GlPipeChecksum, "GlPipeChecksum", false, reasonDefault)
	set(&fs.GuestVulkanOnly, "GuestVulkanOnly", flags.Has(FlagUseVK) && !flags.Has(FlagUseGLES), reasonFlags)
	set(&fs.HostComposition, "HostComposition", true, reasonDefault)
	set(&fs.NativeTextureDecompression, "NativeTextureDecompression", false, reasonDefault)
	set(&fs.NoDelayCloseColorBuffer, "NoDelayCloseColorBuffer", true, reasonDefault)
	set(&fs.PlayStoreImage, "PlayStoreImage", !flags.Has(FlagUseGLES), reasonFlags)
	// Resources are ref counted via guest file objects.
	set(&fs.RefCountPipe, "RefCountPipe", false, reasonDefault)
	set(&fs.SystemBlob, "SystemBlob", flags.Has(FlagUseSystemBlob), reasonFlags)
	set(&fs.VirtioGpuFenceContexts, "VirtioGpuFenceContexts", true, reasonDefault)
	set(&fs.VirtioGpuNativeSync, "VirtioGpuNativeSync", true, reasonDefault)
	set(&fs.VirtioGpuNext, "VirtioGpuNext", true, reasonDefault)
	set(&fs.Vulkan, "Vulkan", flags.Has(FlagUseVK), reasonFlags)
	set(&fs.VulkanBatchedDescriptorSetUpdate, "VulkanBatchedDescriptorSetUpdate", true, reasonDefault)
	set(&fs.VulkanExternalSync, "VulkanExternalSync", flags.Has(FlagVulkanExternalSync), reasonFlags)
	set(&fs.VulkanIgnoredHandles, "VulkanIgnoredHandles", true, reasonDefault)
	set(&fs.VulkanNativeSwapchain, "VulkanNativeSwapchain", flags.Has(FlagVulkanNativeSwapchain), reasonFlags)
	set(&fs.VulkanNullOptionalStrings, "VulkanNullOptionalStrings", true, reasonDefault)
	set(&fs.VulkanQueueSubmitWithCommands, "VulkanQueueSubmitWithCommands", true, reasonDefault)
	set(&fs.VulkanShaderFloat16Int8, "VulkanShaderFloat16Int8", true, reasonDefault)
	set(&fs.VulkanSnapshots, "VulkanSnapshots", os.Getenv(CaptureVulkanSnapshotsEnv) == "1", reasonEnv)
	return fs
}

// Parse builds the feature set from the renderer flags, then applies overrides.
//
// overrides is a comma separated list of `Name:enabled` or `Name:disabled` items.
// Unknown names, malformed items and contradictory results fail with
// [errdefs.ErrInvalidArgument].
func Parse(ctx context.Context, flags RendererFlags, overrides string) (FeatureSet, error) {
	fs := Defaults(flags)

	for _, item := range strings.Split(overrides, ",") {
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 2 {
			return FeatureSet{}, errdefs.InvalidArgumentf("invalid renderer features %q", overrides)
		}
		name, status := parts[0], parts[1]
		f, ok := fs.Lookup(name)
		if !ok {
			return FeatureSet{}, errdefs.InvalidArgumentf("invalid renderer feature %q", name)
		}
		if status != "enabled" && status != "disabled" {
			return FeatureSet{}, errdefs.InvalidArgumentf("invalid option %q for renderer feature %q", status, name)
		}
		f.Enabled = status == "enabled"
		f.Reason = reasonOverride
		log.G(ctx).WithFields(logrus.Fields{
			logfields.Feature: name,
			logfields.Bool:    f.Enabled,
		}).Info("renderer feature overridden")
	}

	if fs.SystemBlob.Enabled {
		if !fs.ExternalBlob.Enabled {
			return FeatureSet{}, errdefs.InvalidArgumentf("the SystemBlob feature requires the ExternalBlob feature")
		}
		log.G(ctx).Warning("SystemBlob has only been tested on Windows")
	}
	if fs.VulkanNativeSwapchain.Enabled && !fs.Vulkan.Enabled {
		return FeatureSet{}, errdefs.InvalidArgumentf("can't enable vulkan native swapchain, Vulkan is disabled")
	}
	return fs, nil
}

// Log writes every feature and why it has its value.
func (fs *FeatureSet) Log(ctx context.Context) {
	for _, f := range fs.List() {
		log.G(ctx).WithFields(logrus.Fields{
			logfields.Feature: f.Name,
			logfields.Bool:    f.Enabled,
			logfields.Reason:  f.Reason,
		}).Info("renderer feature")
	}
}
