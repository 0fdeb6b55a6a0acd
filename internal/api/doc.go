// Package api serves the single page client and the JSON endpoints that
// drive the wallet session and the contract actions.
package api
