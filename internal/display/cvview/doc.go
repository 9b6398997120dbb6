// Package cvview shows frames in an OpenCV highgui window. It is only
// built with the gocv tag.
package cvview
