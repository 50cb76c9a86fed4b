package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-rod/stealth"

	"browserstealth/internal/profile"
)

// patch is one anti-detection script. source must be a list of statements;
// it runs inside its own guarded function scope.
type patch struct {
	name    string
	enabled func(profile.AntiDetectionSettings) bool
	source  func(profile.FingerprintSettings) string
}

const (
	webglVendor   = "Intel Inc."
	webglRenderer = "Intel Iris OpenGL Engine"

	// chromeHeight is the browser toolbar height added to innerHeight.
	chromeHeight = 85
)

var patches = []patch{
	{
		name:    "webdriver",
		enabled: func(a profile.AntiDetectionSettings) bool { return a.HideWebdriver },
		source:  constSource(webdriverPatch),
	},
	{
		name:    "plugins",
		enabled: func(a profile.AntiDetectionSettings) bool { return a.SpoofPlugins },
		source:  constSource(pluginsPatch),
	},
	{
		name:    "languages",
		enabled: func(a profile.AntiDetectionSettings) bool { return a.SpoofLanguages },
		source: func(fp profile.FingerprintSettings) string {
			return fmt.Sprintf(languagesPatch, jsValue(languagesFor(fp.Locale)))
		},
	},
	{
		name:    "webgl",
		enabled: func(a profile.AntiDetectionSettings) bool { return a.SpoofWebGL },
		source: func(profile.FingerprintSettings) string {
			return fmt.Sprintf(webglPatch, jsValue(webglVendor), jsValue(webglRenderer))
		},
	},
	{
		name:    "canvas",
		enabled: func(a profile.AntiDetectionSettings) bool { return a.CanvasNoise },
		source:  constSource(canvasPatch),
	},
	{
		name:    "audio",
		enabled: func(a profile.AntiDetectionSettings) bool { return a.AudioNoise },
		source:  constSource(audioPatch),
	},
	{
		name:    "hardware",
		enabled: func(a profile.AntiDetectionSettings) bool { return a.SpoofHardware },
		source: func(fp profile.FingerprintSettings) string {
			return fmt.Sprintf(hardwarePatch, fp.HardwareConcurrency, fp.DeviceMemory)
		},
	},
	{
		name:    "window",
		enabled: func(a profile.AntiDetectionSettings) bool { return a.WindowDimensions },
		source: func(profile.FingerprintSettings) string {
			return fmt.Sprintf(windowPatch, chromeHeight)
		},
	},
	{
		name:    "chrome_runtime",
		enabled: func(a profile.AntiDetectionSettings) bool { return a.ChromeRuntime },
		source:  constSource(chromeRuntimePatch),
	},
	{
		name:    "permissions",
		enabled: func(a profile.AntiDetectionSettings) bool { return a.PermissionsQuery },
		source:  constSource(permissionsPatch),
	},
	{
		name:    "stealth_bundle",
		enabled: func(a profile.AntiDetectionSettings) bool { return a.StealthBundle },
		source:  constSource(stealth.JS),
	},
}

// BuildStealthScript composes every enabled patch into one script that runs
// before page scripts. It returns "" when no patch is enabled.
func BuildStealthScript(ad profile.AntiDetectionSettings, fp profile.FingerprintSettings) string {
	var b strings.Builder
	for _, p := range patches {
		if !p.enabled(ad) {
			continue
		}
		fmt.Fprintf(&b, "  // %s\n  try { (() => {\n%s\n  })(); } catch (e) {}\n", p.name, p.source(fp))
	}
	if b.Len() == 0 {
		return ""
	}
	return "(() => {\n" + b.String() + "})();"
}

// EnabledPatches lists the names of the patches ad turns on, in injection
// order.
func EnabledPatches(ad profile.AntiDetectionSettings) []string {
	var names []string
	for _, p := range patches {
		if p.enabled(ad) {
			names = append(names, p.name)
		}
	}
	return names
}

// ApplyStealth registers the composed script on every document of c.
func ApplyStealth(c *Context, resolved profile.Resolved) error {
	js := BuildStealthScript(resolved.AntiDetection, resolved.Fingerprint)
	if js == "" {
		return nil
	}
	if err := c.AddInitScript(js); err != nil {
		return fmt.Errorf("failed to apply stealth patches: %w", err)
	}
	return nil
}

func constSource(js string) func(profile.FingerprintSettings) string {
	return func(profile.FingerprintSettings) string { return js }
}

// languagesFor expands a locale into a navigator.languages list, e.g.
// "de-DE" becomes ["de-DE", "de"].
func languagesFor(locale string) []string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = "en-US"
	}
	langs := []string{locale}
	if base, _, ok := strings.Cut(locale, "-"); ok && base != "" {
		langs = append(langs, base)
	}
	return langs
}

func jsValue(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}

const webdriverPatch = `    const proto = Object.getPrototypeOf(navigator);
    delete proto.webdriver;
    if (navigator.webdriver !== undefined) {
      Object.defineProperty(proto, 'webdriver', { get: () => undefined, configurable: true });
    }`

const pluginsPatch = `    const plugins = [
      { name: 'PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
      { name: 'Chrome PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
      { name: 'Chromium PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
      { name: 'Microsoft Edge PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
      { name: 'WebKit built-in PDF', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
    ];
    const mimes = [
      { type: 'application/pdf', suffixes: 'pdf', description: 'Portable Document Format' },
      { type: 'text/pdf', suffixes: 'pdf', description: 'Portable Document Format' },
    ];
    const build = (items, arrayProto, itemProto, key) => {
      const arr = Object.create(arrayProto);
      items.forEach((item, i) => {
        const obj = Object.create(itemProto);
        for (const [k, v] of Object.entries(item)) {
          Object.defineProperty(obj, k, { value: v, enumerable: true, configurable: true });
        }
        arr[i] = obj;
      });
      Object.defineProperty(arr, 'length', { value: items.length, configurable: true });
      arr.item = function (i) { return this[i] || null; };
      arr.namedItem = function (name) {
        for (let i = 0; i < this.length; i++) {
          if (this[i][key] === name) return this[i];
        }
        return null;
      };
      arr.refresh = function () {};
      return arr;
    };
    const pluginArray = build(plugins, PluginArray.prototype, Plugin.prototype, 'name');
    const mimeArray = build(mimes, MimeTypeArray.prototype, MimeType.prototype, 'type');
    const proto = Object.getPrototypeOf(navigator);
    Object.defineProperty(proto, 'plugins', { get: () => pluginArray, configurable: true });
    Object.defineProperty(proto, 'mimeTypes', { get: () => mimeArray, configurable: true });`

const languagesPatch = `    const langs = Object.freeze(%s);
    const proto = Object.getPrototypeOf(navigator);
    Object.defineProperty(proto, 'languages', { get: () => langs, configurable: true });
    Object.defineProperty(proto, 'language', { get: () => langs[0], configurable: true });`

const webglPatch = `    const vendor = %s;
    const renderer = %s;
    const spoof = (ctor) => {
      if (typeof ctor === 'undefined') return;
      const getParameter = ctor.prototype.getParameter;
      Object.defineProperty(ctor.prototype, 'getParameter', {
        configurable: true,
        writable: true,
        value: function (param) {
          if (param === 37445) return vendor;
          if (param === 37446) return renderer;
          return getParameter.call(this, param);
        },
      });
    };
    spoof(window.WebGLRenderingContext);
    spoof(window.WebGL2RenderingContext);`

const canvasPatch = `    const noisy = (canvas) => {
      const w = canvas.width;
      const h = canvas.height;
      if (!w || !h) return canvas;
      try {
        const clone = document.createElement('canvas');
        clone.width = w;
        clone.height = h;
        const ctx = clone.getContext('2d');
        ctx.drawImage(canvas, 0, 0);
        const img = ctx.getImageData(0, 0, w, h);
        const touches = Math.min(10, w * h);
        for (let i = 0; i < touches; i++) {
          const px = Math.floor(Math.random() * w * h) * 4;
          img.data[px + Math.floor(Math.random() * 3)] ^= 1;
        }
        ctx.putImageData(img, 0, 0);
        return clone;
      } catch (e) {
        return canvas;
      }
    };
    const proto = HTMLCanvasElement.prototype;
    const toDataURL = proto.toDataURL;
    const toBlob = proto.toBlob;
    Object.defineProperty(proto, 'toDataURL', {
      configurable: true,
      writable: true,
      value: function (...args) { return toDataURL.apply(noisy(this), args); },
    });
    Object.defineProperty(proto, 'toBlob', {
      configurable: true,
      writable: true,
      value: function (...args) { return toBlob.apply(noisy(this), args); },
    });`

const audioPatch = `    const touched = new WeakSet();
    if (typeof AudioBuffer !== 'undefined') {
      const getChannelData = AudioBuffer.prototype.getChannelData;
      Object.defineProperty(AudioBuffer.prototype, 'getChannelData', {
        configurable: true,
        writable: true,
        value: function (...args) {
          const data = getChannelData.apply(this, args);
          if (!touched.has(data)) {
            touched.add(data);
            for (let i = Math.floor(Math.random() * 100); i < data.length; i += 100) {
              data[i] += (Math.random() - 0.5) * 1e-7;
            }
          }
          return data;
        },
      });
    }
    if (typeof AnalyserNode !== 'undefined') {
      for (const name of ['getFloatFrequencyData', 'getFloatTimeDomainData', 'getByteFrequencyData', 'getByteTimeDomainData']) {
        const read = AnalyserNode.prototype[name];
        if (typeof read !== 'function') continue;
        const isFloat = name.startsWith('getFloat');
        Object.defineProperty(AnalyserNode.prototype, name, {
          configurable: true,
          writable: true,
          value: function (array) {
            const result = read.call(this, array);
            if (array && array.length && !touched.has(array)) {
              touched.add(array);
              for (let i = Math.floor(Math.random() * 50); i < array.length; i += 50) {
                if (isFloat) {
                  array[i] += (Math.random() - 0.5) * 1e-4;
                } else {
                  array[i] = Math.max(0, Math.min(255, array[i] + (Math.random() < 0.5 ? -1 : 1)));
                }
              }
            }
            return result;
          },
        });
      }
    }`

const hardwarePatch = `    const proto = Object.getPrototypeOf(navigator);
    Object.defineProperty(proto, 'hardwareConcurrency', { get: () => %d, configurable: true });
    Object.defineProperty(proto, 'deviceMemory', { get: () => %d, configurable: true });`

const windowPatch = `    Object.defineProperty(window, 'outerWidth', { get: () => window.innerWidth, configurable: true });
    Object.defineProperty(window, 'outerHeight', { get: () => window.innerHeight + %d, configurable: true });`

const chromeRuntimePatch = `    if (!window.chrome) {
      Object.defineProperty(window, 'chrome', { value: {}, writable: true, configurable: true });
    }
    if (!window.chrome.runtime) {
      window.chrome.runtime = {};
    }`

const permissionsPatch = `    if (!navigator.permissions || !navigator.permissions.query) return;
    const query = navigator.permissions.query.bind(navigator.permissions);
    Object.defineProperty(navigator.permissions, 'query', {
      configurable: true,
      writable: true,
      value: (params) => {
        if (params && params.name === 'notifications') {
          const state = typeof Notification === 'undefined' ? 'default' : Notification.permission;
          return Promise.resolve({ state: state === 'default' ? 'prompt' : state, onchange: null });
        }
        return query(params);
      },
    });`
