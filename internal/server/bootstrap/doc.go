// Package bootstrap turns a ServerConfig into running components.
//
// keydesk-server and keydesk-cli share it so that both open the same store
// with the same key prefix and build the Desk with the same settings.
package bootstrap
