// Package httpapi serves the mission lifecycle as a JSON HTTP API.
package httpapi
