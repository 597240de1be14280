// Package viewer is the full-screen live view of a DLT stream used by
// dlttap view. Records are rendered with the text formatter into a
// scrollable bubbles viewport; scrolling up pauses following.
package viewer
