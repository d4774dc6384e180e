/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/parkerflight/bookingcore"
	"github.com/parkerflight/bookingcore/config"
	"github.com/parkerflight/bookingcore/database"
)

// BookingCLI is the CLI application, encapsulating the root Cobra command.
type BookingCLI struct {
	cmd *cobra.Command
}

// coreInstance holds the initialized service and its configuration for the
// lifetime of a command.
type coreInstance struct {
	core *bookingcore.BookingCore
	cnf  *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the booking core before any
// command runs.
func preRun(app *coreInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("booking.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		core, err := setupCore(cnf)
		if err != nil {
			log.Fatal(err)
		}

		app.core = core
		app.cnf = cnf

		return nil
	}
}

func setupCore(cfg *config.Configuration) (*bookingcore.BookingCore, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	core, err := bookingcore.NewBookingCore(db)
	if err != nil {
		return nil, fmt.Errorf("error creating booking core: %v", err)
	}
	return core, nil
}

func NewCLI() *BookingCLI {
	var configFile string
	b := &coreInstance{}

	var rootCmd = &cobra.Command{
		Use:   "bookingcore",
		Short: "Resilient flight booking core",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./booking.json", "Configuration file for the booking core")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))

	return &BookingCLI{cmd: rootCmd}
}

func (w BookingCLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
