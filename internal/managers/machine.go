// Package managers assembles the daemon's long-lived subsystems from
// configuration: controller sessions, history backends, and their fan-out
// channels.
package managers

import (
	"context"
	"fmt"

	"github.com/boxboy523/inzi/internal/controller"
	"github.com/boxboy523/inzi/internal/log"
	"github.com/boxboy523/inzi/internal/types"
	"github.com/boxboy523/inzi/pkg/config"
	"github.com/boxboy523/inzi/pkg/focas"
	"go.uber.org/zap"
)

// MachineManager owns the controller sessions, one per configured machine,
// for the life of the process.
type MachineManager struct {
	ctx      context.Context
	logger   *zap.SugaredLogger
	machines []config.MachineData
	sessions map[uint16]*controller.Session
	profiles map[uint16][]*types.ToolProfile
}

// NewMachineManager creates one session per configured machine and attempts
// the startup connection for each. A machine that is offline at startup is
// not an error; a background retry keeps attempting the connection until the
// controller appears.
func NewMachineManager(ctx context.Context, configProvider config.ConfigProvider, driverFor func(config.MachineData) focas.Driver, logger *zap.SugaredLogger) (*MachineManager, error) {
	machines, err := configProvider.GetMachines()
	if err != nil {
		return nil, fmt.Errorf("error loading machine configuration: %w", err)
	}
	if len(machines) == 0 {
		return nil, fmt.Errorf("no machines configured")
	}

	m := &MachineManager{
		ctx:      ctx,
		logger:   logger,
		machines: machines,
		sessions: make(map[uint16]*controller.Session),
		profiles: make(map[uint16][]*types.ToolProfile),
	}

	for _, machine := range machines {
		session := controller.NewSession(ctx, machine, driverFor(machine), logger)
		if err := session.Connect(); err != nil {
			log.Errorf("CNC %s unavailable at startup: %v. Retrying in background", machine.Name, err)
			go session.RetryConnect()
		}
		m.sessions[machine.ID] = session

		for _, tool := range machine.Tools {
			m.profiles[machine.ID] = append(m.profiles[machine.ID], &types.ToolProfile{
				MachineID:    machine.ID,
				Slot:         tool.Slot,
				Name:         tool.Name,
				BasicSize:    tool.BasicSize,
				ManualOffset: tool.ManualOffset,
				OffsetRate:   tool.OffsetRate,
				Active:       tool.Active,
			})
		}
	}

	return m, nil
}

// Sessions returns the session table keyed by machine id.
func (m *MachineManager) Sessions() map[uint16]*controller.Session {
	return m.sessions
}

// Profiles returns the tool profile table keyed by machine id.
func (m *MachineManager) Profiles() map[uint16][]*types.ToolProfile {
	return m.profiles
}

// Machines returns the machine configurations.
func (m *MachineManager) Machines() []config.MachineData {
	return m.machines
}

// Close releases every session's native handle.
func (m *MachineManager) Close() {
	for _, session := range m.sessions {
		session.Close()
	}
}

// DriverForMachine returns the standard driver selection: the simulated
// driver for machines configured with the sim hostname, otherwise the
// process-wide native driver.
func DriverForMachine(native focas.Driver) func(config.MachineData) focas.Driver {
	return func(machine config.MachineData) focas.Driver {
		if machine.Hostname == focas.SimHost {
			return focas.NewSimDriver()
		}
		return native
	}
}
