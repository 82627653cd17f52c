package components

import "github.com/pthm-cable/autopilot/config"

// Body holds the rectangular footprint of a car.
type Body struct {
	Width  float64
	Height float64
}

// Drive holds kinematic limits of a car.
type Drive struct {
	MaxSpeed     float64 // forward limit; reverse is capped at half
	Acceleration float64 // per step while a pedal is held
	Friction     float64 // speed lost per step
	Steering     float64 // radians per step while moving
}

// AgentDrive returns the drive parameters of a trained car.
func AgentDrive(cfg *config.Config) Drive {
	return Drive{
		MaxSpeed:     cfg.Car.MaxSpeed,
		Acceleration: cfg.Car.Acceleration,
		Friction:     cfg.Car.Friction,
		Steering:     cfg.Car.Steering,
	}
}

// TrafficDrive returns the drive parameters of a traffic car. Traffic shares
// the agents' acceleration and friction but has its own top speed.
func TrafficDrive(cfg *config.Config) Drive {
	d := AgentDrive(cfg)
	d.MaxSpeed = cfg.Traffic.MaxSpeed
	return d
}

// CarBody returns the footprint used by every car.
func CarBody(cfg *config.Config) Body {
	return Body{Width: cfg.Car.Width, Height: cfg.Car.Height}
}
