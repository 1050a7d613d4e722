package filter

// cssUIPrefixes and cssUISuffixes catch BEM-flavored component-library class
// names (e.g. "btn-primary--active", "ModalHeader__title") that are not
// npm package names but are lexically plausible ones. Distilled from a
// corpus of real scan findings where these were the dominant false-positive
// shape in layer 3.
var cssUIPrefixes = []string{
	"btn", "modal", "dropdown", "nav", "sidebar", "tooltip", "badge",
	"card", "tab", "toast", "avatar", "icon", "input", "form", "grid",
	"row", "col", "container", "wrapper", "header", "footer", "panel",
}

var cssUISuffixes = []string{
	"active", "disabled", "hidden", "visible", "open", "closed",
	"selected", "focused", "hover", "primary", "secondary", "danger",
	"warning", "success", "small", "large", "wrapper", "container",
}

// i18nNamespaceIndicators are substrings that mark a string as a
// translation/localization key rather than a package name.
var i18nNamespaceIndicators = []string{
	"seo_texts@", "i18n@", "locale@", "translations@",
}

var i18nScopePrefixes = []string{
	"@seo_tags/", "@i18n/", "@locale/", "@translations/",
}

// bundlerHashPrefixes pair with a trailing 32+ character hex hash to form
// bundler-synthesized identifiers, e.g. "@playwri_<hash>".
var bundlerHashPrefixes = []string{
	"@playwri_", "@sw_", "@parcel_", "@turbo_", "@pnpm_", "@vite_", "@esbuild_",
}

// obfuscationArtifactFragments are known anti-bot/fingerprinting library
// fragments that are lexically similar to scoped package segments but are
// never themselves npm packages.
var obfuscationArtifactFragments = []string{
	"icjsn", "ipjsn", "tmx_", "fp_", "dfp_", "threat-", "imperva-", "incapsula-",
}

// serviceIntegrationHosts is a curated allowlist of third-party
// consent/analytics/support SaaS CDNs whose embedded "module" names are
// vendor-internal and not npm packages.
var serviceIntegrationHosts = []string{
	"osano.com", "carrotquest.io", "newrelic.com", "google-analytics.com",
	"googletagmanager.com", "yandex.ru", "yandex.net", "segment.com",
	"intercom.io", "zendesk.com", "hubspot.com", "hotjar.com",
	"amplitude.com", "mixpanel.com",
}

// odooScopePrefixes mirror Odoo's `@scope/module` JS naming convention,
// which collides syntactically with npm scoped packages but is never one.
var odooScopePrefixes = []string{
	"@web/", "@web_tour/", "@odoo/", "@mail/", "@portal/", "@website/",
	"@point_of_sale/", "@pos/", "@stock/", "@account/", "@sale/",
	"@purchase/", "@crm/", "@hr/", "@project/", "@auth_",
}

// wellKnownPackages is a curated allowlist of real public packages that
// short-circuit straight to Exists without running the rest of the stack
// (layer 7). It is intentionally small — a correctness net for extremely
// common names, not a registry substitute.
var wellKnownPackages = map[string]struct{}{
	"lodash": {}, "react": {}, "react-dom": {}, "vue": {}, "axios": {},
	"express": {}, "moment": {}, "jquery": {}, "underscore": {},
	"@babel/core": {}, "@babel/runtime": {}, "webpack": {}, "typescript": {},
	"rxjs": {}, "core-js": {}, "classnames": {}, "uuid": {}, "chalk": {},
	"commander": {}, "dayjs": {}, "d3": {},
}

// builtinModules is the Node.js built-in module list, including the
// "node:" prefixed form.
var builtinModules = map[string]struct{}{
	"assert": {}, "buffer": {}, "child_process": {}, "cluster": {},
	"crypto": {}, "dgram": {}, "dns": {}, "domain": {}, "events": {},
	"fs": {}, "http": {}, "http2": {}, "https": {}, "net": {}, "os": {},
	"path": {}, "perf_hooks": {}, "process": {}, "punycode": {},
	"querystring": {}, "readline": {}, "stream": {}, "string_decoder": {},
	"timers": {}, "tls": {}, "tty": {}, "url": {}, "util": {}, "v8": {},
	"vm": {}, "worker_threads": {}, "zlib": {}, "module": {}, "repl": {},
}

// bundlerInternalNames is a fixed denylist of chunk identifiers and
// runtime helpers emitted by common bundlers, never real package names.
var bundlerInternalNames = map[string]struct{}{
	"webpack": {}, "__webpack_require__": {}, "__webpack_modules__": {},
	"__esModule": {}, "regeneratorRuntime": {}, "webpackJsonp": {},
	"webpackChunk": {}, "__webpack_exports__": {}, "webpack/container/entry": {},
}
