// Package kinematics produces noiseless ground-truth trajectories for a
// vehicle moving along a single axis.
//
// Responsibilities: discrete kinematic integration of position and
// velocity from an initial state and an acceleration schedule.
// Key types: Trajectory, AccelProfile.
//
// All distances are in metres, velocities in m/s, accelerations in m/s²
// and time in seconds.
package kinematics
