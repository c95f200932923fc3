// Package sessions stores per-platform login cookies and runs the flows that acquire them.
//
// Three acquisition flows exist, one per source: pasted cookie text ([Store.ImportManual], also accepting a
// "Copy as cURL" command through [Store.ImportCurl]), the login window ([Store.OpenLoginWindow] followed by
// [Store.CheckLogin]) and a local browser's cookie store ([Store.ImportFromBrowser]). Each successful import
// makes the platform's session ACTIVE and publishes session-status-changed. Cookies are sealed before they
// reach the database and only leave the store through [Store.CookiesFor], which workers use to build a
// temporary cookie file.
package sessions
