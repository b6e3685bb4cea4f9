package streamrenderer

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Microsoft/virtiogpu/internal/features"
	"github.com/Microsoft/virtiogpu/internal/log"
)

// Environment variables read or written while preparing the GLES emulation.
const (
	envGfxstreamEGL  = "ANDROID_GFXSTREAM_EGL"
	envEGLOnEGL      = "ANDROID_EGL_ON_EGL"
	envEmuglLogPrint = "ANDROID_EMUGL_LOG_PRINT"
	envEmuglVerbose  = "ANDROID_EMUGL_VERBOSE"
	envEmuHeadless   = "ANDROID_EMU_HEADLESS"
)

// setupEnvironment exports the variables the GLES emulation reads at startup. EGL on
// EGL is enabled either by the USE_EGL renderer flag or by the environment.
func setupEnvironment(ctx context.Context, flags features.RendererFlags) error {
	set := func(k string) error {
		log.G(ctx).WithField(k, "1").Debug("setting environment")
		return os.Setenv(k, "1")
	}

	if os.Getenv(envGfxstreamEGL) == "1" {
		for _, k := range []string{envEGLOnEGL, envEmuglLogPrint, envEmuglVerbose} {
			if err := set(k); err != nil {
				return err
			}
		}
	}
	if err := set(envEmuHeadless); err != nil {
		return err
	}

	egl := flags&features.FlagUseEGL != 0 || os.Getenv(envEGLOnEGL) == "1"
	if egl {
		for _, k := range []string{envGfxstreamEGL, envEGLOnEGL} {
			if err := set(k); err != nil {
				return err
			}
		}
	}
	log.G(ctx).WithFields(logrus.Fields{
		"egl2egl":     egl,
		"surfaceless": flags&features.FlagUseSurfaceless != 0,
	}).Debug("prepared gles emulation environment")
	return nil
}
