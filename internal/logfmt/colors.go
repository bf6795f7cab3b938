/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package logfmt

import "github.com/muesli/termenv"

// Color is a terminal color understood by termenv's active color profile.
type Color = termenv.Color

// Fixed 16-color ANSI palette used by the default style below.
var (
	ANSIBlack         Color = termenv.ANSIColor(0)
	ANSIRed           Color = termenv.ANSIColor(1)
	ANSIGreen         Color = termenv.ANSIColor(2)
	ANSIYellow        Color = termenv.ANSIColor(3)
	ANSIBlue          Color = termenv.ANSIColor(4)
	ANSIMagenta       Color = termenv.ANSIColor(5)
	ANSICyan          Color = termenv.ANSIColor(6)
	ANSIWhite         Color = termenv.ANSIColor(7)
	ANSIBrightBlack   Color = termenv.ANSIColor(8)
	ANSIBrightRed     Color = termenv.ANSIColor(9)
	ANSIBrightGreen   Color = termenv.ANSIColor(10)
	ANSIBrightYellow  Color = termenv.ANSIColor(11)
	ANSIBrightBlue    Color = termenv.ANSIColor(12)
	ANSIBrightMagenta Color = termenv.ANSIColor(13)
	ANSIBrightCyan    Color = termenv.ANSIColor(14)
	ANSIBrightWhite   Color = termenv.ANSIColor(15)
)
