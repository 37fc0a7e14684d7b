// Package plugin defines the service plugin contract used to turn page URLs
// into concrete download requests.
//
// A Service may answer GetDownloadRequest with a DownloadRequest, or ask the
// caller to wait, solve a captcha, or fill in settings first. Follow-up
// answers go back through SubmitCaptchaResponse and SubmitSettingsResponse
// with the callback name the plugin handed out. Registry picks the first
// registered service whose Matches reports true.
//
// Direct is the built-in service for plain HTTP links.
package plugin
