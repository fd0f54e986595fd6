// Package telegram implements the Telegram approver channel for tollgate.
//
// Every approval request becomes one message in a fixed chat, carrying an
// inline Approve/Deny keyboard. The Telegram message id doubles as the
// out-of-band tracking code: callback queries reference the message they were
// attached to, so a tapped button maps straight back to the pending request.
// Decisions live in an in-memory store until the proxy core collects them
// through CheckApproval; each request expires on its own TTL.
//
// Two delivery modes are supported: long-polling (default) and webhook
// through the gateway dispatcher, validated by Telegram's
// X-Telegram-Bot-Api-Secret-Token header.
//
// The module registers itself as "approver.telegram" via init() and exposes
// the channel to the proxy core as the "approver.channel" service.
//
// No external Telegram library is used; the module communicates with the
// Bot API via raw net/http + encoding/json.
package telegram
