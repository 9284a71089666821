/*
Copyright © 2019 the ETMap authors.
This file is part of ETMap.

ETMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ETMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ETMap.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command etmap is a command-line interface for the ETMap potential
// evapotranspiration model.
package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/etmap/etmaputil"
)

var logger *logrus.Logger

func init() {
	logger = logrus.StandardLogger()
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	})
}

func main() {
	if err := etmaputil.Root.Execute(); err != nil {
		logger.WithError(err).Fatal("etmap failed")
	}
}
