// Package dispatch delivers a card UID to the user.
//
// The default KeyboardDispatcher places the text on the system clipboard and
// then synthesizes the paste shortcut, which keeps delivery independent of
// the active keyboard layout. ClipboardDispatcher stops after the clipboard
// write and WriterDispatcher prints one UID per line for scripting.
package dispatch
