// Package observability provides the diagnostic logger and the board event
// log. Diagnostics go through logrus; board events (moves, edits, logins) are
// appended to a JSON Lines file that the events command reads back.
package observability
