// Package server implements the real-time room server for Sketchroom.
//
// Connections are admitted by the auth gate, registered with the Hub, and
// tracked with their room memberships in the Registry. Each inbound frame is
// executed by the Engine, which writes to the store and fans results out to
// room members through Hub.Broadcast according to the operation's
// PersistPolicy.
package server
